// Command rover drives an RC car from a gamepad.
//
// It opens the configured board, wires up the drive motor, the steering servo
// and optionally a speed encoder, then binds them to the first gamepad it
// finds and runs until interrupted.
package main

import (
	"context"
	"flag"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.viam.com/utils"

	"github.com/jameskerry651/rc-assemble/board"
	fakeboard "github.com/jameskerry651/rc-assemble/board/fake"
	"github.com/jameskerry651/rc-assemble/board/jetson"
	"github.com/jameskerry651/rc-assemble/config"
	"github.com/jameskerry651/rc-assemble/encoder"
	"github.com/jameskerry651/rc-assemble/encoder/single"
	"github.com/jameskerry651/rc-assemble/input/gamepad"
	motorgpio "github.com/jameskerry651/rc-assemble/motor/gpio"
	"github.com/jameskerry651/rc-assemble/rc"
	servogpio "github.com/jameskerry651/rc-assemble/servo/gpio"
)

func main() {
	utils.ContextualMain(mainWithArgs, golog.NewDevelopmentLogger("rover"))
}

func mainWithArgs(ctx context.Context, args []string, logger golog.Logger) error {
	flags := flag.NewFlagSet(args[0], flag.ContinueOnError)
	configPath := flags.String("config", "", "path to a JSON config file")
	debug := flags.Bool("debug", false, "enable debug logging")
	if err := flags.Parse(args[1:]); err != nil {
		return err
	}
	if *debug {
		logger = golog.NewDebugLogger("rover")
	}

	conf, err := config.Read(*configPath)
	if err != nil {
		return err
	}
	return runRover(ctx, conf, logger)
}

func newBoard(ctx context.Context, conf config.Config, logger golog.Logger) (board.Board, error) {
	switch conf.Board.Model {
	case config.BoardModelFake:
		b := fakeboard.NewBoard()
		for _, ic := range conf.Board.DigitalInterrupts {
			b.AddDigitalInterrupt(ic.Name)
		}
		return b, nil
	case config.BoardModelJetson:
		return jetson.NewBoard(ctx, jetson.Config{
			DigitalInterrupts: conf.Board.DigitalInterrupts,
		}, logger)
	default:
		return nil, errors.Errorf("unknown board model %q", conf.Board.Model)
	}
}

func runRover(ctx context.Context, conf config.Config, logger golog.Logger) (err error) {
	b, err := newBoard(ctx, conf, logger)
	if err != nil {
		return errors.Wrap(err, "cannot open board")
	}
	defer func() {
		err = multierr.Combine(err, b.Close(ctx))
	}()

	m, err := motorgpio.NewMotor(b, conf.Motor, logger)
	if err != nil {
		return errors.Wrap(err, "cannot set up motor")
	}
	defer func() {
		err = multierr.Combine(err, m.Close(ctx))
	}()

	s, err := servogpio.NewServo(ctx, b, conf.Servo, logger)
	if err != nil {
		return errors.Wrap(err, "cannot set up servo")
	}
	defer func() {
		err = multierr.Combine(err, s.Close(ctx))
	}()

	var e encoder.Encoder
	if conf.Encoder != nil {
		e, err = single.NewEncoder(ctx, b, *conf.Encoder, logger)
		if err != nil {
			return errors.Wrap(err, "cannot set up encoder")
		}
		defer func() {
			err = multierr.Combine(err, e.Close(ctx))
		}()
	}

	controller, err := gamepad.NewController(ctx, conf.Gamepad, logger)
	if err != nil {
		return errors.Wrap(err, "cannot open gamepad")
	}
	defer func() {
		err = multierr.Combine(err, controller.Close(ctx))
	}()

	svc, err := rc.New(ctx, controller, m, s, e, conf.RC, logger)
	if err != nil {
		return errors.Wrap(err, "cannot start remote control")
	}
	defer func() {
		err = multierr.Combine(err, svc.Close(ctx))
	}()

	logger.Info("rover ready")
	<-ctx.Done()
	logger.Info("shutting down")
	return nil
}

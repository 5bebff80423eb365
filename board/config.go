package board

import (
	"errors"
	"fmt"
	"time"

	"github.com/arloliu/go-packedserial/logger"
	"github.com/arloliu/go-packedserial/transport"
)

// Default session settings.
const (
	DefaultBaudRate        = 115200
	DefaultSettleDelay     = 2 * time.Second
	DefaultResponseTimeout = 5 * time.Second
	DefaultSendTimeout     = 3 * time.Second
)

// Setting range limits.
const (
	MaxSettleDelay     = 30 * time.Second
	MaxResponseTimeout = 5 * time.Minute
	MaxSendTimeout     = time.Minute
)

// Config holds the settings of one board session.
type Config struct {
	baudRate        int
	settleDelay     time.Duration
	responseTimeout time.Duration
	sendTimeout     time.Duration
	opener          transport.Opener
	logger          logger.Logger
	handlers        []StateChangeHandler
}

// NewConfig creates a session configuration. opts are applied in order.
func NewConfig(opts ...Option) (*Config, error) {
	cfg := &Config{
		baudRate:        DefaultBaudRate,
		settleDelay:     DefaultSettleDelay,
		responseTimeout: DefaultResponseTimeout,
		sendTimeout:     DefaultSendTimeout,
		opener:          transport.SerialOpener{},
		logger:          logger.GetLogger(),
	}

	for _, opt := range opts {
		if err := opt.apply(cfg); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// BaudRate returns the serial line rate.
func (cfg *Config) BaudRate() int { return cfg.baudRate }

// SettleDelay returns the wait between opening the port and sending defineAdapter.
func (cfg *Config) SettleDelay() time.Duration { return cfg.settleDelay }

// ResponseTimeout returns the per-request enumeration timeout. Zero disables it.
func (cfg *Config) ResponseTimeout() time.Duration { return cfg.responseTimeout }

// SendTimeout returns the limit for writing and draining one frame.
func (cfg *Config) SendTimeout() time.Duration { return cfg.sendTimeout }

// Opener returns the transport opener.
func (cfg *Config) Opener() transport.Opener { return cfg.opener }

// GetLogger returns the configured logger.
func (cfg *Config) GetLogger() logger.Logger { return cfg.logger }

// Option is a functional option for configuring a board session.
type Option interface {
	apply(*Config) error
}

type optFunc func(*Config) error

func (f optFunc) apply(cfg *Config) error { return f(cfg) }

// WithBaudRate sets the serial line rate. The default is 115200.
func WithBaudRate(rate int) Option {
	return optFunc(func(cfg *Config) error {
		if rate <= 0 {
			return fmt.Errorf("board: baud rate %d must be positive", rate)
		}
		cfg.baudRate = rate

		return nil
	})
}

// WithSettleDelay sets the wait after opening the port before the first request, giving boards
// that reset on DTR time to leave their bootloader. Must be in [0, 30s].
func WithSettleDelay(d time.Duration) Option {
	return optFunc(func(cfg *Config) error {
		if d < 0 || d > MaxSettleDelay {
			return fmt.Errorf("board: settle delay %v out of range [0, %v]", d, MaxSettleDelay)
		}
		cfg.settleDelay = d

		return nil
	})
}

// WithResponseTimeout sets how long an enumeration request may go unanswered before the session
// is dropped. Zero disables the timeout. Must be in [0, 5m].
func WithResponseTimeout(d time.Duration) Option {
	return optFunc(func(cfg *Config) error {
		if d < 0 || d > MaxResponseTimeout {
			return fmt.Errorf("board: response timeout %v out of range [0, %v]", d, MaxResponseTimeout)
		}
		cfg.responseTimeout = d

		return nil
	})
}

// WithSendTimeout sets the limit for writing and draining one frame. Must be in (0, 1m].
func WithSendTimeout(d time.Duration) Option {
	return optFunc(func(cfg *Config) error {
		if d <= 0 || d > MaxSendTimeout {
			return fmt.Errorf("board: send timeout %v out of range (0, %v]", d, MaxSendTimeout)
		}
		cfg.sendTimeout = d

		return nil
	})
}

// WithOpener sets the transport opener. The default opens real serial ports.
func WithOpener(o transport.Opener) Option {
	return optFunc(func(cfg *Config) error {
		if o == nil {
			return errors.New("board: opener must not be nil")
		}
		cfg.opener = o

		return nil
	})
}

// WithLogger sets the logger for the session.
func WithLogger(l logger.Logger) Option {
	return optFunc(func(cfg *Config) error {
		if l == nil {
			return errors.New("board: logger must not be nil")
		}
		cfg.logger = l

		return nil
	})
}

// WithStateChangeHandler registers handlers invoked on every state transition.
func WithStateChangeHandler(handlers ...StateChangeHandler) Option {
	return optFunc(func(cfg *Config) error {
		cfg.handlers = append(cfg.handlers, handlers...)
		return nil
	})
}

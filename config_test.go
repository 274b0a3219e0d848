package serialscope

import (
	"errors"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.BaudRate != 115200 {
		t.Errorf("expected default baud rate 115200, got %d", cfg.BaudRate)
	}
	if cfg.DataBits != 8 {
		t.Errorf("expected default data bits 8, got %d", cfg.DataBits)
	}
	if cfg.StopBits != 1 {
		t.Errorf("expected default stop bits 1, got %d", cfg.StopBits)
	}
	if cfg.Parity != ParityNone {
		t.Errorf("expected default parity none, got %v", cfg.Parity)
	}
	if !cfg.QualityAnalysis {
		t.Error("expected quality analysis enabled by default")
	}
	if cfg.AutoReconnect {
		t.Error("expected auto reconnect disabled by default")
	}
	if cfg.OpenAttempts < 1 {
		t.Errorf("expected at least one open attempt, got %d", cfg.OpenAttempts)
	}
	if cfg.CloseAttempts < 1 {
		t.Errorf("expected at least one close attempt, got %d", cfg.CloseAttempts)
	}
}

func TestConfigOptions(t *testing.T) {
	tests := []struct {
		name    string
		option  Option
		wantErr error
		check   func(Config) bool
	}{
		{
			name:   "valid baud rate",
			option: WithBaudRate(9600),
			check:  func(c Config) bool { return c.BaudRate == 9600 },
		},
		{
			name:    "invalid baud rate",
			option:  WithBaudRate(12345),
			wantErr: ErrInvalidBaudRate,
		},
		{
			name:   "valid data bits",
			option: WithDataBits(7),
			check:  func(c Config) bool { return c.DataBits == 7 },
		},
		{
			name:    "data bits too low",
			option:  WithDataBits(4),
			wantErr: ErrInvalidConfig,
		},
		{
			name:    "data bits too high",
			option:  WithDataBits(9),
			wantErr: ErrInvalidConfig,
		},
		{
			name:   "valid stop bits",
			option: WithStopBits(2),
			check:  func(c Config) bool { return c.StopBits == 2 },
		},
		{
			name:    "invalid stop bits",
			option:  WithStopBits(3),
			wantErr: ErrInvalidConfig,
		},
		{
			name:   "parity even",
			option: WithParity(ParityEven),
			check:  func(c Config) bool { return c.Parity == ParityEven },
		},
		{
			name:   "valid read timeout",
			option: WithReadTimeout(25),
			check:  func(c Config) bool { return c.ReadTimeoutTenths == 25 },
		},
		{
			name:    "read timeout out of range",
			option:  WithReadTimeout(256),
			wantErr: ErrInvalidConfig,
		},
		{
			name:    "negative read timeout",
			option:  WithReadTimeout(-1),
			wantErr: ErrInvalidConfig,
		},
		{
			name:   "open retry",
			option: WithOpenRetry(5, 100*time.Millisecond),
			check: func(c Config) bool {
				return c.OpenAttempts == 5 && c.OpenRetryWait == 100*time.Millisecond
			},
		},
		{
			name:    "open retry without attempts",
			option:  WithOpenRetry(0, time.Millisecond),
			wantErr: ErrInvalidConfig,
		},
		{
			name:   "close retry",
			option: WithCloseRetry(3, 20*time.Millisecond),
			check: func(c Config) bool {
				return c.CloseAttempts == 3 && c.CloseRetryWait == 20*time.Millisecond
			},
		},
		{
			name:   "settle delay",
			option: WithSettleDelay(250 * time.Millisecond),
			check:  func(c Config) bool { return c.SettleDelay == 250*time.Millisecond },
		},
		{
			name:    "negative settle delay",
			option:  WithSettleDelay(-time.Millisecond),
			wantErr: ErrInvalidConfig,
		},
		{
			name:   "auto reconnect",
			option: WithAutoReconnect(time.Second, 3),
			check: func(c Config) bool {
				return c.AutoReconnect && c.ReconnectWait == time.Second && c.ReconnectAttempts == 3
			},
		},
		{
			name:    "auto reconnect without attempts",
			option:  WithAutoReconnect(time.Second, 0),
			wantErr: ErrInvalidConfig,
		},
		{
			name:   "without quality analysis",
			option: WithoutQualityAnalysis(),
			check:  func(c Config) bool { return !c.QualityAnalysis },
		},
		{
			name:   "pause cooldown",
			option: WithPauseCooldown(500 * time.Millisecond),
			check:  func(c Config) bool { return c.PauseCooldown == 500*time.Millisecond },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			err := tt.option(&cfg)

			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("expected error %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.check != nil && !tt.check(cfg) {
				t.Errorf("option did not apply expected change: %+v", cfg)
			}
		})
	}
}

func TestMaxCloseWallClock(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CloseAttempts = 5
	cfg.CloseRetryWait = 50 * time.Millisecond
	cfg.SettleDelay = 100 * time.Millisecond

	want := 350 * time.Millisecond
	if got := cfg.maxCloseWallClock(); got != want {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestBaudConstant(t *testing.T) {
	valid := []int{1200, 9600, 19200, 38400, 57600, 115200, 230400, 460800, 921600, 4000000}
	for _, rate := range valid {
		if _, err := baudConstant(rate); err != nil {
			t.Errorf("expected baud rate %d to be valid: %v", rate, err)
		}
	}

	invalid := []int{0, -9600, 12345, 128000}
	for _, rate := range invalid {
		if _, err := baudConstant(rate); !errors.Is(err, ErrInvalidBaudRate) {
			t.Errorf("expected baud rate %d to be invalid", rate)
		}
	}
}

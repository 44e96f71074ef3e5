package server

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"arenasync/protocol"
)

// Config 进程级配置：.env → 环境变量 → 命令行参数，后者覆盖前者
type Config struct {
	Addr       string
	Room       string
	LogFile    string
	LogConsole bool
	StaticDir  string
	Settings   RoomSettings
}

func DefaultConfig() Config {
	return Config{
		Addr:       ":2567",
		Room:       protocol.DefaultRoomName,
		LogFile:    "app.log",
		LogConsole: true,
		StaticDir:  "public",
		Settings:   DefaultRoomSettings(),
	}
}

// LoadConfig 读取 envFile（不存在时忽略）与环境变量，再解析 args
func LoadConfig(envFile string, args []string) (Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", envFile, err)
		}
	}
	cfg := DefaultConfig()
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}

	fset := flag.NewFlagSet("arenasync", flag.ContinueOnError)
	fset.StringVar(&cfg.Addr, "addr", cfg.Addr, "server listen address, e.g. :2567")
	fset.StringVar(&cfg.Room, "room", cfg.Room, "default room name for join-or-create")
	fset.StringVar(&cfg.LogFile, "log", cfg.LogFile, "rolling log file path")
	fset.BoolVar(&cfg.LogConsole, "console", cfg.LogConsole, "also log to stdout")
	fset.StringVar(&cfg.StaticDir, "static", cfg.StaticDir, "static file directory served at /")
	fset.DurationVar(&cfg.Settings.PatchInterval, "patch", cfg.Settings.PatchInterval, "replication patch interval")
	fset.IntVar(&cfg.Settings.MaxClients, "max-clients", cfg.Settings.MaxClients, "max clients per room (0 = unlimited)")
	fset.DurationVar(&cfg.Settings.IdleDispose, "idle-dispose", cfg.Settings.IdleDispose, "dispose empty rooms after this long (0 = never)")
	fset.Float64Var(&cfg.Settings.MsgRate, "msg-rate", cfg.Settings.MsgRate, "inbound messages per second per connection (0 = unlimited)")
	fset.IntVar(&cfg.Settings.MsgBurst, "msg-burst", cfg.Settings.MsgBurst, "inbound message burst per connection")
	if err := fset.Parse(args); err != nil {
		return Config{}, err
	}
	if cfg.Settings.PatchInterval <= 0 {
		return Config{}, fmt.Errorf("patch interval must be > 0, got %s", cfg.Settings.PatchInterval)
	}
	if cfg.Settings.MsgBurst <= 0 {
		return Config{}, fmt.Errorf("msg burst must be > 0, got %d", cfg.Settings.MsgBurst)
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup("ARENA_ADDR"); ok {
		c.Addr = v
	} else if v, ok := lookup("PORT"); ok {
		c.Addr = ":" + v
	}
	if v, ok := lookup("ARENA_ROOM"); ok && v != "" {
		c.Room = v
	}
	if v, ok := lookup("ARENA_LOG_FILE"); ok {
		c.LogFile = v
	}
	if v, ok := lookup("ARENA_STATIC_DIR"); ok {
		c.StaticDir = v
	}
	if err := envMillis(lookup, "ARENA_PATCH_MS", &c.Settings.PatchInterval); err != nil {
		return err
	}
	if err := envMillis(lookup, "ARENA_IDLE_DISPOSE_MS", &c.Settings.IdleDispose); err != nil {
		return err
	}
	if v, ok := lookup("ARENA_MAX_CLIENTS"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("ARENA_MAX_CLIENTS: %w", err)
		}
		c.Settings.MaxClients = n
	}
	if v, ok := lookup("ARENA_MSG_RATE"); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("ARENA_MSG_RATE: %w", err)
		}
		c.Settings.MsgRate = f
	}
	if v, ok := lookup("ARENA_MSG_BURST"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("ARENA_MSG_BURST: %w", err)
		}
		c.Settings.MsgBurst = n
	}
	return nil
}

func envMillis(lookup func(string) (string, bool), key string, dst *time.Duration) error {
	v, ok := lookup(key)
	if !ok {
		return nil
	}
	ms, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = time.Duration(ms) * time.Millisecond
	return nil
}

package QueryGate

import (
	"context"
	"errors"
	"fmt"
	"io/fs"

	"pkt.systems/pslog"

	"github.com/nickyhof/QueryGate/access"
	"github.com/nickyhof/QueryGate/config"
	"github.com/nickyhof/QueryGate/core"
	"github.com/nickyhof/QueryGate/db"
	"github.com/nickyhof/QueryGate/query"
)

type Options struct {
	// ConfigPath names the configuration file. Empty runs with defaults.
	ConfigPath string
	// BaseDir overrides base_dir from the configuration.
	BaseDir  string
	Identity core.Identity
	Logger   pslog.Logger
}

// Instance is the process-wide gateway state. It is read-only once opened.
type Instance struct {
	Config    *config.Config
	Policy    *access.Policy
	Registry  *db.Registry
	Processor *query.Processor
	baseDir   string
}

func Open(opts Options) (*Instance, error) {
	logger := opts.Logger
	if logger == nil {
		logger = pslog.NoopLogger()
	}

	cfg := config.New()
	if opts.ConfigPath != "" {
		var err error
		cfg, err = config.Load(opts.ConfigPath)
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %v", ErrNoInput, err)
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrConfig, err)
		}
	}

	maxSize, err := cfg.Int(config.MaxDbaseSize, db.MaxDatabaseSize)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfig, err)
	}
	lockTimeout, err := cfg.Duration(config.LockTimeout, db.DefaultLockTimeout)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfig, err)
	}
	policy, err := access.NewPolicy(cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfig, err)
	}

	baseDir := opts.BaseDir
	if baseDir == "" {
		baseDir = cfg.First(config.BaseDir)
	}
	registry := db.NewRegistry(db.Options{
		BaseDir:     baseDir,
		MaxSize:     maxSize,
		LockTimeout: lockTimeout,
		Identity:    opts.Identity,
		S3: db.S3Config{
			Endpoint:  cfg.First(config.S3Endpoint),
			Region:    cfg.First(config.S3Region),
			AccessKey: cfg.First(config.S3AccessKey),
			SecretKey: cfg.First(config.S3SecretKey),
		},
		Logger: logger,
	})

	processor, err := query.NewProcessor(query.Options{
		Config:   cfg,
		Policy:   policy,
		Registry: registry,
		Logger:   logger,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfig, err)
	}

	if policy.Open() {
		logger.Warn("access.open", "reason", "no ip, token or jwt settings configured")
	}
	return &Instance{
		Config:    cfg,
		Policy:    policy,
		Registry:  registry,
		Processor: processor,
		baseDir:   baseDir,
	}, nil
}

// Process runs one request in slot.
func (instance *Instance) Process(ctx context.Context, slot *query.Slot, req query.Request) query.Response {
	return instance.Processor.Process(ctx, slot, req)
}

// BaseDir is where databases are kept, or empty when they live in memory.
func (instance *Instance) BaseDir() string {
	return instance.baseDir
}

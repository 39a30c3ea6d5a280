package ingest

import "time"

// Config contains configuration options that allow customization of how
// an ingest run stages, tags and organises media.
type Config struct {
	// The name of the directory, created inside the destination, that
	// the source is copied in to before it is tagged and organised.
	StagingDirName string `yaml:"staging_dir_name" env:"INGEST_STAGING_DIR_NAME" env-default:".tasaveer_staging" validate:"required,excludesall=/\\"`

	// The strftime-style layout handed to the organise tool when a
	// request does not carry its own.
	DateFormat string `yaml:"date_format" env:"INGEST_DATE_FORMAT" env-default:"%Y/%m" validate:"required"`

	// While a step is running, user-visible log lines are batched and
	// flushed at this interval.
	FlushInterval time.Duration `yaml:"flush_interval" env:"INGEST_FLUSH_INTERVAL" env-default:"100ms"`

	// Controls how many files may have keywords written concurrently.
	// Each write may spawn an external process.
	TaggingWorkers int `yaml:"tagging_workers" env:"INGEST_TAGGING_WORKERS" env-default:"4" validate:"min=1"`
}

func DefaultConfig() Config {
	return Config{
		StagingDirName: ".tasaveer_staging",
		DateFormat:     "%Y/%m",
		FlushInterval:  100 * time.Millisecond,
		TaggingWorkers: 4,
	}
}

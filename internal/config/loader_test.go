package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestLoadDefaults(t *testing.T) {
	Convey("Given no overrides", t, func() {
		cfg, err := Load(context.Background())

		Convey("Then defaults are returned", func() {
			So(err, ShouldBeNil)
			So(cfg.Addr, ShouldEqual, ":8090")
			So(cfg.Environment, ShouldEqual, "dev")
			So(cfg.BatchSize, ShouldEqual, 50)
			So(cfg.MaxAccuracyMeters, ShouldEqual, 100)
			So(cfg.ToleranceMS, ShouldEqual, 0)
		})
	})
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("TRACKING_ADDR", ":9999")
	t.Setenv("TRACKING_BATCH_SIZE", "25")
	t.Setenv("TRACKING_TOLERANCE_MS", "250")
	t.Setenv("TRACKING_MAX_ACCURACY_METERS", "50.5")

	Convey("Given TRACKING_* environment variables", t, func() {
		cfg, err := Load(context.Background())

		Convey("Then they override the defaults", func() {
			So(err, ShouldBeNil)
			So(cfg.Addr, ShouldEqual, ":9999")
			So(cfg.BatchSize, ShouldEqual, 25)
			So(cfg.ToleranceMS, ShouldEqual, 250)
			So(cfg.MaxAccuracyMeters, ShouldEqual, 50.5)
		})
	})
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := "addr: \":7070\"\nenvironment: staging\nbatch_size: 10\n"
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("TRACKING_CONFIG", path)

	Convey("Given a YAML config file", t, func() {
		cfg, err := Load(context.Background())

		Convey("Then file values override defaults", func() {
			So(err, ShouldBeNil)
			So(cfg.Addr, ShouldEqual, ":7070")
			So(cfg.Environment, ShouldEqual, "staging")
			So(cfg.BatchSize, ShouldEqual, 10)
		})
	})
}

func TestLoadFileEnvPrecedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("addr: \":7070\"\nenvironment: staging\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("TRACKING_CONFIG", path)
	t.Setenv("TRACKING_ADDR", ":6060")

	Convey("Given both a file and environment overrides", t, func() {
		cfg, err := Load(context.Background())

		Convey("Then the environment wins over the file", func() {
			So(err, ShouldBeNil)
			So(cfg.Addr, ShouldEqual, ":6060")
			So(cfg.Environment, ShouldEqual, "staging")
		})
	})
}

func TestLoadMissingFile(t *testing.T) {
	t.Setenv("TRACKING_CONFIG", filepath.Join(t.TempDir(), "missing.yaml"))

	Convey("Given a TRACKING_CONFIG pointing nowhere", t, func() {
		_, err := Load(context.Background())

		Convey("Then loading fails", func() {
			So(errors.Is(err, ErrLoadConfig), ShouldBeTrue)
		})
	})
}

func TestLoadValidation(t *testing.T) {
	cases := []struct {
		name  string
		key   string
		value string
	}{
		{"non-positive batch size", "TRACKING_BATCH_SIZE", "0"},
		{"negative tolerance", "TRACKING_TOLERANCE_MS", "-5"},
		{"non-positive worker count", "TRACKING_WORKER_COUNT", "0"},
		{"pending cap below batch size", "TRACKING_MAX_PENDING_PER_SESSION", "10"},
		{"non-positive accuracy bound", "TRACKING_MAX_ACCURACY_METERS", "0"},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv(tc.key, tc.value)

			Convey("Given an invalid "+tc.name, t, func() {
				_, err := Load(context.Background())

				Convey("Then validation rejects it", func() {
					So(errors.Is(err, ErrInvalidConfig), ShouldBeTrue)
				})
			})
		})
	}
}

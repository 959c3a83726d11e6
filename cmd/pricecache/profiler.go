package main

import (
	pyroscope "github.com/grafana/pyroscope-go"
	"github.com/matrix-tang/ex-rs/internal/config"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
)

type profilerLogger struct{}

func (profilerLogger) Infof(format string, args ...any)  { logs.Debugf("pyroscope: "+format, args...) }
func (profilerLogger) Debugf(format string, args ...any) { logs.Debugf("pyroscope: "+format, args...) }
func (profilerLogger) Errorf(format string, args ...any) { logs.Errorf("pyroscope: "+format, args...) }

func startProfiler(cfg config.ProfilingConfig) (func(), error) {
	profiler, err := pyroscope.Start(pyroscope.Config{
		ApplicationName: cfg.ApplicationName,
		ServerAddress:   cfg.ServerAddress,
		Tags: map[string]string{
			"service": "pricecache",
		},
		Logger: profilerLogger{},
		ProfileTypes: []pyroscope.ProfileType{
			pyroscope.ProfileCPU,
			pyroscope.ProfileAllocObjects,
			pyroscope.ProfileAllocSpace,
			pyroscope.ProfileInuseObjects,
			pyroscope.ProfileInuseSpace,
		},
	})
	if err != nil {
		return nil, errors.Wrap(err, "start pyroscope").With("server", cfg.ServerAddress)
	}
	return func() {
		_ = profiler.Stop()
	}, nil
}

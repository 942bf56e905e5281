package logx

import "go.uber.org/zap"

// New returns the service-wide structured logger. Dev mode pakai console
// encoder biar enak dibaca.
func New(service string, dev bool) (*zap.Logger, error) {
	var (
		log *zap.Logger
		err error
	)
	if dev {
		log, err = zap.NewDevelopment()
	} else {
		log, err = zap.NewProduction()
	}
	if err != nil {
		return nil, err
	}
	return log.With(zap.String("service", service)), nil
}

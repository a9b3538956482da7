package mlmodel

import "errors"

var (
	// ErrNotInitialized is returned when predictions are requested before a
	// model set has been loaded or trained
	ErrNotInitialized = errors.New("models not trained yet")

	// ErrTrainingFailed wraps any failure of the training path: dataset
	// acquisition, fitting, persistence or the training deadline
	ErrTrainingFailed = errors.New("model training failed")

	// ErrConfiguration means the held model set and statistics disagree
	ErrConfiguration = errors.New("model configuration is inconsistent")
)

package tts

import (
	"errors"
	"fmt"
	"os"
	"runtime"

	"github.com/sirupsen/logrus"
)

type EngineType string

const (
	EngineTypeMock          EngineType = "mock"
	EngineTypeESpeak        EngineType = "espeak"
	EngineTypeSAPI          EngineType = "sapi"         // Windows only
	EngineTypeAVFoundation  EngineType = "avfoundation" // macOS only
	EngineTypeGoogleClassic EngineType = "googleclassic"
	EngineTypeAuto          EngineType = "auto" // Automatically choose best for platform
)

func (e EngineType) String() string {
	return string(e)
}

// NewEngine creates a new TTS engine based on the provided config. With
// "auto" the candidates from candidateEngines are tried in order and
// ErrEngineUnavailable is returned if none can be created.
func NewEngine(config Config) (Engine, error) {
	if config.Type == "" || config.Type == EngineTypeAuto.String() {
		var errs []error
		for _, t := range candidateEngines() {
			engine, err := newEngine(t, config)
			if err == nil {
				logrus.WithField("engine", t.String()).Debug("Selected speech engine")
				return engine, nil
			}
			logrus.WithError(err).WithField("engine", t.String()).Debug("Speech engine not usable")
			errs = append(errs, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrEngineUnavailable, errors.Join(errs...))
	}

	return newEngine(EngineType(config.Type), config)
}

func newEngine(t EngineType, config Config) (Engine, error) {
	switch t {
	case EngineTypeMock:
		return NewMockTTSEngine(WithAutoComplete(0), WithEcho()), nil

	case EngineTypeGoogleClassic:
		engine, err := newGoogleClassicTTSEngine(config)
		if err != nil {
			return nil, err
		}
		return engine, nil

	case EngineTypeESpeak:
		return processEngine(newESpeakEngine(config))

	case EngineTypeSAPI:
		if runtime.GOOS != "windows" {
			return nil, fmt.Errorf("%w: SAPI engine only supports Windows", ErrEngineUnavailable)
		}
		return processEngine(newSAPIEngine(config))

	case EngineTypeAVFoundation:
		if runtime.GOOS != "darwin" {
			return nil, fmt.Errorf("%w: AVFoundation engine only supports macOS", ErrEngineUnavailable)
		}
		return processEngine(newAVFoundationEngine(config))

	default:
		return nil, fmt.Errorf("unsupported TTS engine type: %s", t)
	}
}

// processEngine avoids handing out a typed nil inside the Engine interface.
func processEngine(e *ProcessEngine, err error) (Engine, error) {
	if err != nil {
		return nil, err
	}
	return e, nil
}

// candidateEngines returns the engines worth trying on this platform, best first.
func candidateEngines() []EngineType {
	var engines []EngineType
	if hasGoogleCredentials() {
		engines = append(engines, EngineTypeGoogleClassic)
	}

	switch runtime.GOOS {
	case "windows":
		engines = append(engines, EngineTypeSAPI)
	case "darwin":
		engines = append(engines, EngineTypeAVFoundation)
	}
	return append(engines, EngineTypeESpeak)
}

// GetAvailableEngines returns engines available on the current platform
func GetAvailableEngines() []EngineType {
	return append([]EngineType{EngineTypeMock}, candidateEngines()...)
}

// hasGoogleCredentials checks if Google Cloud credentials are available
func hasGoogleCredentials() bool {
	// Check for service account key file
	_, ok := os.LookupEnv("GOOGLE_APPLICATION_CREDENTIALS")
	return ok
}

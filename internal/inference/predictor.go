package inference

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	ort "github.com/yalue/onnxruntime_go"

	"urlguard/internal/features"
)

const (
	ModelFile        = "phishing_classifier.onnx"
	FeatureNamesFile = "feature_names.txt"

	DefaultLibraryPath = "/usr/lib/libonnxruntime.so"
)

// ErrFeatureMismatch means the model was trained on a different feature
// order than the extractor produces.
var ErrFeatureMismatch = errors.New("model feature order does not match extractor")

// Config names the model files and tensors. The model is expected to be a
// scikit-learn export with zipmap disabled: a [1,30] float input, an int64
// label and a [1,2] float probability output.
type Config struct {
	ModelDir          string
	InputName         string
	LabelOutput       string
	ProbabilityOutput string
	// Threshold on P(phishing) above which the verdict is phishing.
	Threshold float32
}

// Prediction is the classifier output for one vector. Label 1 is phishing.
type Prediction struct {
	Label       int64   `json:"label"`
	Probability float32 `json:"probability"`
	Phishing    bool    `json:"phishing"`
}

type Predictor struct {
	session *ort.DynamicAdvancedSession
	cfg     Config
}

func InitONNX(libraryPath string) error {
	if ort.IsInitialized() {
		return nil
	}
	// 1. Set path to the shared library
	if libraryPath == "" {
		libraryPath = DefaultLibraryPath
	}
	ort.SetSharedLibraryPath(libraryPath)

	// 2. Initialize Environment
	if err := ort.InitializeEnvironment(); err != nil {
		return fmt.Errorf("failed to initialize onnx environment: %w", err)
	}
	return nil
}

func CleanupONNX() {
	ort.DestroyEnvironment()
}

// LoadFeatureNames reads one feature name per line, skipping blank lines.
func LoadFeatureNames(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var names []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			names = append(names, line)
		}
	}
	return names, scanner.Err()
}

// CheckFeatureOrder compares a model's feature list against features.Names.
func CheckFeatureOrder(names []string) error {
	if len(names) != features.Count {
		return fmt.Errorf("%w: model has %d features, extractor %d", ErrFeatureMismatch, len(names), features.Count)
	}
	for i, n := range names {
		if features.Name(n) != features.Names[i] {
			return fmt.Errorf("%w: position %d is %q, extractor has %q", ErrFeatureMismatch, i, n, features.Names[i])
		}
	}
	return nil
}

// NewPredictor loads the model from cfg.ModelDir after checking its feature
// list. InitONNX must have succeeded first.
func NewPredictor(cfg Config) (*Predictor, error) {
	if cfg.Threshold <= 0 {
		cfg.Threshold = 0.5
	}

	// 1. Load and verify feature names
	names, err := LoadFeatureNames(filepath.Join(cfg.ModelDir, FeatureNamesFile))
	if err != nil {
		return nil, fmt.Errorf("failed to read feature names: %w", err)
	}
	if err := CheckFeatureOrder(names); err != nil {
		return nil, err
	}

	// 2. Load model
	session, err := ort.NewDynamicAdvancedSession(
		filepath.Join(cfg.ModelDir, ModelFile),
		[]string{cfg.InputName},
		[]string{cfg.LabelOutput, cfg.ProbabilityOutput},
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load phishing model: %w", err)
	}

	return &Predictor{session: session, cfg: cfg}, nil
}

func (p *Predictor) Predict(vec features.Vector) (Prediction, error) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	// 1. Create Input Tensor
	input := vec.Floats()
	inputTensor, err := ort.NewTensor(ort.NewShape(1, int64(len(input))), input)
	if err != nil {
		return Prediction{}, fmt.Errorf("input tensor creation failed: %w", err)
	}
	defer inputTensor.Destroy()

	// 2. Create Output Tensors
	labelTensor, err := ort.NewEmptyTensor[int64](ort.NewShape(1))
	if err != nil {
		return Prediction{}, fmt.Errorf("label tensor creation failed: %w", err)
	}
	defer labelTensor.Destroy()

	probTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 2))
	if err != nil {
		return Prediction{}, fmt.Errorf("probability tensor creation failed: %w", err)
	}
	defer probTensor.Destroy()

	// 3. Run Model
	if err := p.session.Run([]ort.Value{inputTensor}, []ort.Value{labelTensor, probTensor}); err != nil {
		return Prediction{}, fmt.Errorf("phishing inference failed: %w", err)
	}

	// 4. Extract Data
	prob := probTensor.GetData()[1]
	return Prediction{
		Label:       labelTensor.GetData()[0],
		Probability: prob,
		Phishing:    prob > p.cfg.Threshold,
	}, nil
}

func (p *Predictor) Close() {
	if p.session != nil {
		p.session.Destroy()
	}
}

// Command trainmodel fits a Gaussian naive Bayes classifier on a labeled
// CSV dataset, writes the model artifact, and optionally registers the
// version in the local model registry. The serving core never trains;
// this tool produces the artifacts it consumes.
package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"

	"mlserve/db"
	"mlserve/ml"
)

func main() {
	dataPath := flag.String("data", "data/iris.csv", "labeled training data (csv, label in last column)")
	outPath := flag.String("out", "testdata/iris_model.json", "artifact output path")
	registryPath := flag.String("registry", "", "optional sqlite registry to record the version in")
	testRatio := flag.Float64("test_ratio", 0.2, "held-out fraction for the accuracy estimate")
	seed := flag.Int64("seed", 42, "shuffle seed")
	flag.Parse()

	featureNames, classNames, features, labels, err := loadDataset(*dataPath)
	if err != nil {
		log.Fatalf("failed to load dataset: %v", err)
	}

	trainX, trainY, testX, testY := splitDataset(features, labels, *testRatio, *seed)

	nb := &ml.GaussianNB{}
	if err := nb.Fit(trainX, trainY, len(classNames)); err != nil {
		log.Fatalf("failed to fit model: %v", err)
	}

	accuracy := evaluate(nb, testX, testY)
	log.Printf("train=%d test=%d accuracy=%.4f", len(trainX), len(testX), accuracy)

	artifact := &ml.Artifact{
		Version:      uuid.NewString()[:8],
		ModelType:    ml.ModelTypeGaussianNB,
		FeatureNames: featureNames,
		ClassNames:   classNames,
		Priors:       nb.Priors,
		Means:        nb.Means,
		Variances:    nb.Variances,
		Accuracy:     accuracy,
		TrainedAt:    time.Now().UTC(),
	}

	if err := os.MkdirAll(filepath.Dir(*outPath), 0o755); err != nil {
		log.Fatalf("failed to create artifact dir: %v", err)
	}
	if err := ml.WriteArtifact(*outPath, artifact); err != nil {
		log.Fatalf("failed to save artifact: %v", err)
	}

	if *registryPath != "" {
		if err := register(artifact, *outPath, *registryPath, len(features)); err != nil {
			log.Fatalf("failed to register model: %v", err)
		}
		log.Printf("registered version %s in %s", artifact.Version, *registryPath)
	}

	fmt.Printf("model %s saved to %s\n", artifact.Version, *outPath)
}

// loadDataset parses a CSV with a header row, numeric feature columns and
// the class label in the last column. Class indices follow first
// appearance order.
func loadDataset(path string) (featureNames, classNames []string, features [][]float64, labels []int, err error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	defer file.Close()

	rows, err := csv.NewReader(file).ReadAll()
	if err != nil {
		return nil, nil, nil, nil, err
	}
	if len(rows) < 2 {
		return nil, nil, nil, nil, fmt.Errorf("%s has no data rows", path)
	}

	header := rows[0]
	if len(header) < 2 {
		return nil, nil, nil, nil, fmt.Errorf("%s needs at least one feature column and a label column", path)
	}
	featureNames = header[:len(header)-1]

	classIndex := make(map[string]int)
	for n, row := range rows[1:] {
		if len(row) != len(header) {
			return nil, nil, nil, nil, fmt.Errorf("row %d has %d columns, want %d", n+2, len(row), len(header))
		}
		vector := make([]float64, len(featureNames))
		for i := range featureNames {
			v, err := strconv.ParseFloat(row[i], 64)
			if err != nil {
				return nil, nil, nil, nil, fmt.Errorf("row %d column %s: %w", n+2, header[i], err)
			}
			vector[i] = v
		}
		class := row[len(row)-1]
		idx, ok := classIndex[class]
		if !ok {
			idx = len(classNames)
			classIndex[class] = idx
			classNames = append(classNames, class)
		}
		features = append(features, vector)
		labels = append(labels, idx)
	}
	return featureNames, classNames, features, labels, nil
}

func splitDataset(features [][]float64, labels []int, testRatio float64, seed int64) (trainX [][]float64, trainY []int, testX [][]float64, testY []int) {
	if testRatio <= 0 || testRatio >= 1 {
		testRatio = 0.2
	}

	order := rand.New(rand.NewSource(seed)).Perm(len(features))
	split := int(float64(len(features)) * (1 - testRatio))
	for n, i := range order {
		if n < split {
			trainX = append(trainX, features[i])
			trainY = append(trainY, labels[i])
		} else {
			testX = append(testX, features[i])
			testY = append(testY, labels[i])
		}
	}
	return trainX, trainY, testX, testY
}

func evaluate(nb *ml.GaussianNB, testX [][]float64, testY []int) float64 {
	if len(testX) == 0 {
		return 0
	}
	var correct int
	for i, vector := range testX {
		probs, err := nb.PredictProba(vector)
		if err != nil {
			continue
		}
		best := 0
		for k, p := range probs {
			if p > probs[best] {
				best = k
			}
		}
		if best == testY[i] {
			correct++
		}
	}
	return float64(correct) / float64(len(testX))
}

func register(artifact *ml.Artifact, outPath, registryPath string, dataPoints int) error {
	if err := db.InitDB(registryPath); err != nil {
		return err
	}
	defer db.CloseDB()

	return db.RegisterModel(db.ModelRecord{
		Version:    artifact.Version,
		Path:       outPath,
		ModelType:  artifact.ModelType,
		Accuracy:   artifact.Accuracy,
		DataPoints: dataPoints,
		TrainedAt:  artifact.TrainedAt,
	})
}

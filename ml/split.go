package ml

import (
	"fmt"
	"math"
	"math/rand"
)

// TrainTestSplit shuffles rows with a seeded source and holds out
// ceil(testSize*n) of them. The same seed and input give the same split.
func TrainTestSplit(X [][]float64, y []float64, testSize float64, seed int64) (trainX, testX [][]float64, trainY, testY []float64, err error) {
	if len(X) != len(y) {
		return nil, nil, nil, nil, fmt.Errorf("%w: %d rows, %d targets", ErrDimensionMismatch, len(X), len(y))
	}
	if testSize <= 0 || testSize >= 1 {
		return nil, nil, nil, nil, fmt.Errorf("test size must be in (0, 1), got %v", testSize)
	}
	n := len(X)
	nTest := int(math.Ceil(testSize * float64(n)))
	nTrain := n - nTest
	if nTest == 0 || nTrain == 0 {
		return nil, nil, nil, nil, fmt.Errorf("%d rows cannot be split with test size %v", n, testSize)
	}

	rnd := rand.New(rand.NewSource(seed))
	indices := rnd.Perm(n)

	testX = make([][]float64, 0, nTest)
	testY = make([]float64, 0, nTest)
	trainX = make([][]float64, 0, nTrain)
	trainY = make([]float64, 0, nTrain)
	for i, idx := range indices {
		if i < nTest {
			testX = append(testX, X[idx])
			testY = append(testY, y[idx])
		} else {
			trainX = append(trainX, X[idx])
			trainY = append(trainY, y[idx])
		}
	}
	return trainX, testX, trainY, testY, nil
}

package scorer

import "errors"

var (
	// ErrEnsembleConfiguration is returned for an empty model list or for
	// retrieval fusion with more than one model.
	ErrEnsembleConfiguration = errors.New("ensemble configuration error")

	// ErrTargetOutOfRange is returned for a target id outside the vocabulary.
	ErrTargetOutOfRange = errors.New("target out of range")

	// ErrShapeMismatch is returned when model outputs and the batch disagree.
	ErrShapeMismatch = errors.New("shape mismatch")
)

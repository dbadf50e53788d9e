package extract

import "errors"

var (
	// ErrNoItemsDetected means the text was read but no line qualified as an item.
	// Callers should ask the user to enter items manually.
	ErrNoItemsDetected = errors.New("no items could be detected on the receipt")

	// ErrNoTextRecognized means the recognizer produced empty text
	ErrNoTextRecognized = errors.New("no text was detected in the image")
)

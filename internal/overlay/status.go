package overlay

import "fmt"

// NoHandText is shown by the classifier when no hand is detected.
const NoHandText = "No hand"

// ViewerStatus is the status bar of the landmark viewer.
func ViewerStatus(maxHands int, detConf, trkConf, fps float64) string {
	return fmt.Sprintf("Hands: %d | DetConf: %g | TrkConf: %g | FPS: %.1f | Q to quit",
		maxHands, detConf, trkConf, fps)
}

// ClassifierStatus is the status bar of the live classifier.
func ClassifierStatus(classes, samples, k int, fps float64) string {
	return fmt.Sprintf("Classes: %d | Samples: %d | k=%d | FPS: %.1f | Q to quit",
		classes, samples, k, fps)
}

// PredictionText formats a smoothed label with the mean neighbour distance.
func PredictionText(label string, meanDistance float64) string {
	return fmt.Sprintf("%s (d=%.3f)", label, meanDistance)
}

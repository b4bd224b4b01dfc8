// Package vision extracts facial features and blink state from camera frames.
//
// Feature extraction uses OpenCV's FaceDetectorYN (YuNet) which reports a face
// bounding box plus five landmarks (both eyes, nose tip, both mouth corners).
// The landmarks are normalized against the face box into a fixed 12-dim
// feature vector suitable for the regression estimator. Blink detection runs
// a Haar eye cascade over the upper face region: a face with no visible eyes
// is treated as a blink.
package vision

import (
	"fmt"
	"image"
	"os"
	"sync"

	"gocv.io/x/gocv"
)

// FeatureDim is the length of the feature vector produced by Extract.
// Ten normalized landmark coordinates plus box aspect and relative face size.
const FeatureDim = 12

// Config holds detector parameters.
type Config struct {
	FaceModelPath    string  // YuNet ONNX model
	EyeCascadePath   string  // Haar cascade XML for eyes
	ConfidenceThresh float64 // Minimum face score
	InputWidth       int
	InputHeight      int
}

// DefaultConfig returns detector parameters that work for a typical webcam.
func DefaultConfig() Config {
	return Config{
		FaceModelPath:    "models/face_detection_yunet.onnx",
		EyeCascadePath:   "models/haarcascade_eye.xml",
		ConfidenceThresh: 0.7,
		InputWidth:       320,
		InputHeight:      320,
	}
}

// Extractor turns frames into (features, blink) observations.
type Extractor interface {
	// Extract returns the feature vector for the most confident face in the
	// frame and whether a blink is detected. A nil feature slice means no
	// face was found.
	Extract(frame gocv.Mat) (features []float64, blink bool)

	Close() error
}

// YuNetExtractor implements Extractor with gocv's FaceDetectorYN and a Haar
// eye cascade.
type YuNetExtractor struct {
	mu       sync.Mutex // protects inference
	detector gocv.FaceDetectorYN
	eyes     gocv.CascadeClassifier
	config   Config
}

// NewYuNet creates the extractor. Both model files must exist on disk.
func NewYuNet(cfg Config) (*YuNetExtractor, error) {
	if _, err := os.Stat(cfg.FaceModelPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("vision: face model not found: %s", cfg.FaceModelPath)
	}
	if _, err := os.Stat(cfg.EyeCascadePath); os.IsNotExist(err) {
		return nil, fmt.Errorf("vision: eye cascade not found: %s", cfg.EyeCascadePath)
	}

	detector := gocv.NewFaceDetectorYNWithParams(
		cfg.FaceModelPath,
		"", // no config file needed for ONNX
		image.Pt(cfg.InputWidth, cfg.InputHeight),
		float32(cfg.ConfidenceThresh),
		0.3,  // NMS threshold
		5000, // top K
		int(gocv.NetBackendDefault),
		int(gocv.NetTargetCPU),
	)

	eyes := gocv.NewCascadeClassifier()
	if !eyes.Load(cfg.EyeCascadePath) {
		detector.Close()
		eyes.Close()
		return nil, fmt.Errorf("vision: load eye cascade: %s", cfg.EyeCascadePath)
	}

	return &YuNetExtractor{
		detector: detector,
		eyes:     eyes,
		config:   cfg,
	}, nil
}

// Extract runs face detection on the frame. When multiple faces are present
// the highest-scoring one wins; the tracker assumes a single user.
func (e *YuNetExtractor) Extract(frame gocv.Mat) ([]float64, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if frame.Empty() {
		return nil, false
	}

	imgW := float64(frame.Cols())
	imgH := float64(frame.Rows())

	e.detector.SetInputSize(image.Pt(frame.Cols(), frame.Rows()))

	faces := gocv.NewMat()
	defer faces.Close()
	e.detector.Detect(frame, &faces)

	best := -1
	bestScore := 0.0
	for r := 0; r < faces.Rows(); r++ {
		if score := float64(faces.GetFloatAt(r, 14)); score > bestScore {
			best, bestScore = r, score
		}
	}
	if best < 0 {
		return nil, false
	}

	// YuNet row layout (15 columns):
	// 0-3: x, y, w, h; 4-13: five landmark (x,y) pairs; 14: score.
	fx := float64(faces.GetFloatAt(best, 0))
	fy := float64(faces.GetFloatAt(best, 1))
	fw := float64(faces.GetFloatAt(best, 2))
	fh := float64(faces.GetFloatAt(best, 3))
	if fw <= 0 || fh <= 0 {
		return nil, false
	}

	features := make([]float64, 0, FeatureDim)
	for i := 0; i < 5; i++ {
		lx := float64(faces.GetFloatAt(best, 4+2*i))
		ly := float64(faces.GetFloatAt(best, 5+2*i))
		// Landmarks relative to the face box so features are invariant to
		// where the face sits in the frame.
		features = append(features, (lx-fx)/fw, (ly-fy)/fh)
	}
	features = append(features, fw/fh)
	features = append(features, (fw*fh)/(imgW*imgH))

	blink := e.detectBlink(frame, fx, fy, fw, fh)

	return features, blink
}

// detectBlink looks for open eyes in the upper half of the face box.
// No eyes visible on a detected face means the lids are closed.
func (e *YuNetExtractor) detectBlink(frame gocv.Mat, fx, fy, fw, fh float64) bool {
	roi := image.Rect(int(fx), int(fy), int(fx+fw), int(fy+fh*0.6))
	roi = roi.Intersect(image.Rect(0, 0, frame.Cols(), frame.Rows()))
	if roi.Empty() {
		return false
	}

	region := frame.Region(roi)
	defer region.Close()

	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(region, &gray, gocv.ColorBGRToGray)

	rects := e.eyes.DetectMultiScale(gray)
	return len(rects) == 0
}

// Close releases the detector resources.
func (e *YuNetExtractor) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.eyes.Close()
	return e.detector.Close()
}

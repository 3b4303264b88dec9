package detector

import (
	"context"
	"fmt"
	"image"
	"log/slog"

	"gocv.io/x/gocv"

	"github.com/pdetect/pdetect-go/internal/conf"
	"github.com/pdetect/pdetect-go/internal/logging"
)

// FaceDetector counts persons by detecting faces with an OpenCV DNN model.
// The network is the SSD style face detector whose output tensor has the
// shape [1, 1, N, 7] with each row holding (_, _, confidence, x1, y1, x2, y2).
type FaceDetector struct {
	net            gocv.Net
	modelPath      string
	inputW, inputH int
	scaleFactor    float64
	meanVal        gocv.Scalar
	scoreThreshold float32
	nmsThreshold   float32
	confThreshold  float64
	log            *slog.Logger
}

// NewFaceDetector loads the DNN face model. A model that cannot be loaded is
// a constructor error; once constructed, per-image calls never fail loudly.
func NewFaceDetector(settings *conf.DetectorSettings) (*FaceDetector, error) {
	if settings.Face.ModelPath == "" {
		return nil, fmt.Errorf("face detector requires a model path")
	}

	net := gocv.ReadNet(settings.Face.ModelPath, "")
	if net.Empty() {
		return nil, fmt.Errorf("failed to load face detection model from %s", settings.Face.ModelPath)
	}

	log := logging.ForService("detector")

	// Prefer CUDA, fall back to CPU when unavailable.
	backendErr := net.SetPreferableBackend(gocv.NetBackendCUDA)
	targetErr := net.SetPreferableTarget(gocv.NetTargetCUDA)
	if backendErr != nil || targetErr != nil {
		if err := net.SetPreferableBackend(gocv.NetBackendDefault); err != nil {
			log.Warn("failed to set DNN backend", "error", err)
		}
		if err := net.SetPreferableTarget(gocv.NetTargetCPU); err != nil {
			log.Warn("failed to set DNN target", "error", err)
		}
		log.Info("face detector using CPU backend")
	} else {
		log.Info("face detector using CUDA backend")
	}

	return &FaceDetector{
		net:            net,
		modelPath:      settings.Face.ModelPath,
		inputW:         300,
		inputH:         300,
		scaleFactor:    1.0,
		meanVal:        gocv.NewScalar(104.0, 177.0, 123.0, 0),
		scoreThreshold: float32(settings.Face.ScoreThreshold),
		nmsThreshold:   float32(settings.Face.NMSThreshold),
		confThreshold:  settings.ConfidenceThreshold,
		log:            log,
	}, nil
}

// Close releases the DNN network.
func (d *FaceDetector) Close() {
	d.net.Close()
}

// Describe implements Detector.
func (d *FaceDetector) Describe() ModelInfo {
	return ModelInfo{
		Name:    "DNN-Face",
		Version: d.modelPath,
		Task:    "face_detection",
		Extra: map[string]any{
			"input_size":      d.inputW,
			"score_threshold": d.scoreThreshold,
			"nms_threshold":   d.nmsThreshold,
		},
	}
}

// Detect implements Detector. All failures are captured in the outcome.
func (d *FaceDetector) Detect(ctx context.Context, imagePath string) (outcome Outcome) {
	defer func() {
		if r := recover(); r != nil {
			outcome = ErrorOutcome(fmt.Sprintf("face detection panic: %v", r), nil)
		}
	}()

	if err := ctx.Err(); err != nil {
		return ErrorOutcome(err.Error(), nil)
	}

	img := gocv.IMRead(imagePath, gocv.IMReadColor)
	if img.Empty() {
		return ErrorOutcome(fmt.Sprintf("failed to read image file: %s", imagePath), nil)
	}
	defer img.Close()

	boxes := d.detectFaces(&img)
	boxes = nonMaxSuppression(boxes, d.nmsThreshold)

	confidences := make([]float64, 0, len(boxes))
	rawBoxes := make([]map[string]any, 0, len(boxes))
	for _, b := range boxes {
		confidences = append(confidences, float64(b.confidence))
		rawBoxes = append(rawBoxes, map[string]any{
			"bbox":       []int{b.x, b.y, b.w, b.h},
			"confidence": float64(b.confidence),
		})
	}

	return withStats(Outcome{
		PersonsDetected: len(boxes),
		Confidences:     confidences,
		Raw: map[string]any{
			"detections": rawBoxes,
			"model_file": d.modelPath,
		},
	}, d.confThreshold)
}

// dnnBox is one raw detection from the network.
type dnnBox struct {
	x, y, w, h int
	confidence float32
}

// detectFaces runs a forward pass and parses the SSD output tensor.
func (d *FaceDetector) detectFaces(img *gocv.Mat) []dnnBox {
	imgW := float32(img.Cols())
	imgH := float32(img.Rows())

	blob := gocv.BlobFromImage(*img, d.scaleFactor, image.Pt(d.inputW, d.inputH), d.meanVal, false, false)
	defer blob.Close()

	d.net.SetInput(blob, "")
	out := d.net.Forward("")
	defer out.Close()

	sizes := out.Size()
	if len(sizes) < 3 {
		d.log.Warn("unexpected DNN output dimensions", "sizes", sizes)
		return nil
	}

	numDetections := sizes[2]
	if numDetections == 0 {
		return nil
	}

	data := out.Reshape(1, numDetections)
	defer data.Close()

	var boxes []dnnBox
	for i := 0; i < numDetections; i++ {
		confidence := data.GetFloatAt(i, 2)
		if confidence < d.scoreThreshold {
			continue
		}

		x1 := clampF(data.GetFloatAt(i, 3)*imgW, 0, imgW)
		y1 := clampF(data.GetFloatAt(i, 4)*imgH, 0, imgH)
		x2 := clampF(data.GetFloatAt(i, 5)*imgW, 0, imgW)
		y2 := clampF(data.GetFloatAt(i, 6)*imgH, 0, imgH)
		if x2 <= x1 || y2 <= y1 {
			continue
		}

		boxes = append(boxes, dnnBox{
			x:          int(x1),
			y:          int(y1),
			w:          int(x2 - x1),
			h:          int(y2 - y1),
			confidence: confidence,
		})
	}

	return boxes
}

// nonMaxSuppression removes overlapping detections, keeping the most
// confident box of each overlap group.
func nonMaxSuppression(boxes []dnnBox, iouThreshold float32) []dnnBox {
	if len(boxes) == 0 {
		return boxes
	}

	// Sort by confidence, highest first.
	for i := 0; i < len(boxes)-1; i++ {
		for j := i + 1; j < len(boxes); j++ {
			if boxes[i].confidence < boxes[j].confidence {
				boxes[i], boxes[j] = boxes[j], boxes[i]
			}
		}
	}

	var kept []dnnBox
	used := make([]bool, len(boxes))
	for i := range boxes {
		if used[i] {
			continue
		}
		kept = append(kept, boxes[i])
		used[i] = true
		for j := i + 1; j < len(boxes); j++ {
			if !used[j] && boxIoU(boxes[i], boxes[j]) > iouThreshold {
				used[j] = true
			}
		}
	}

	return kept
}

// boxIoU computes the intersection over union of two boxes.
func boxIoU(a, b dnnBox) float32 {
	x1 := maxInt(a.x, b.x)
	y1 := maxInt(a.y, b.y)
	x2 := minInt(a.x+a.w, b.x+b.w)
	y2 := minInt(a.y+a.h, b.y+b.h)

	if x2 <= x1 || y2 <= y1 {
		return 0
	}

	intersection := float32((x2 - x1) * (y2 - y1))
	union := float32(a.w*a.h) + float32(b.w*b.h) - intersection
	return intersection / union
}

func clampF(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

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

// ObjectDetector counts persons with an SSD style object detection network.
// The output tensor has the shape [1, 1, N, 7] with each row holding
// (_, classID, confidence, x1, y1, x2, y2); only rows whose class id matches
// the configured person class are kept.
type ObjectDetector struct {
	net            gocv.Net
	modelPath      string
	inputW, inputH int
	scaleFactor    float64
	meanVal        gocv.Scalar
	personClassID  int
	scoreThreshold float32
	nmsThreshold   float32
	confThreshold  float64
	log            *slog.Logger
}

// NewObjectDetector loads the DNN object detection model. As with the face
// detector, a model that cannot be loaded is a constructor error; per-image
// calls never fail loudly.
func NewObjectDetector(settings *conf.DetectorSettings) (*ObjectDetector, error) {
	if settings.Object.ModelPath == "" {
		return nil, fmt.Errorf("object detector requires a model path")
	}

	net := gocv.ReadNet(settings.Object.ModelPath, settings.Object.ConfigPath)
	if net.Empty() {
		return nil, fmt.Errorf("failed to load object detection model from %s", settings.Object.ModelPath)
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
		log.Info("object detector using CPU backend")
	} else {
		log.Info("object detector using CUDA backend")
	}

	personClassID := settings.Object.PersonClassID
	if personClassID <= 0 {
		personClassID = 15 // VOC class id of "person" in MobileNet-SSD
	}

	return &ObjectDetector{
		net:            net,
		modelPath:      settings.Object.ModelPath,
		inputW:         300,
		inputH:         300,
		scaleFactor:    1.0 / 127.5,
		meanVal:        gocv.NewScalar(127.5, 127.5, 127.5, 0),
		personClassID:  personClassID,
		scoreThreshold: float32(settings.Object.ScoreThreshold),
		nmsThreshold:   float32(settings.Object.NMSThreshold),
		confThreshold:  settings.ConfidenceThreshold,
		log:            log,
	}, nil
}

// Close releases the DNN network.
func (d *ObjectDetector) Close() {
	d.net.Close()
}

// Describe implements Detector.
func (d *ObjectDetector) Describe() ModelInfo {
	return ModelInfo{
		Name:    "DNN-Object",
		Version: d.modelPath,
		Task:    "person_detection",
		Extra: map[string]any{
			"input_size":      d.inputW,
			"person_class_id": d.personClassID,
			"score_threshold": d.scoreThreshold,
			"nms_threshold":   d.nmsThreshold,
		},
	}
}

// Detect implements Detector. All failures are captured in the outcome.
func (d *ObjectDetector) Detect(ctx context.Context, imagePath string) (outcome Outcome) {
	defer func() {
		if r := recover(); r != nil {
			outcome = ErrorOutcome(fmt.Sprintf("object detection panic: %v", r), nil)
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

	boxes := d.detectPersons(&img)
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
			"class_id":   d.personClassID,
		},
	}, d.confThreshold)
}

// detectPersons runs a forward pass and keeps the person-class rows of the
// SSD output tensor.
func (d *ObjectDetector) detectPersons(img *gocv.Mat) []dnnBox {
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
		if int(data.GetFloatAt(i, 1)) != d.personClassID {
			continue
		}

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

package analysis

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"urlguard/internal/features"
	"urlguard/internal/inference"
	"urlguard/internal/repository"
)

type Verdict string

const (
	VerdictPhishing     Verdict = "phishing"
	VerdictLegitimate   Verdict = "legitimate"
	VerdictUnclassified Verdict = "unclassified"
)

// DetectionSource tags block rules written for hosts the model flagged.
const DetectionSource = "ai_classifier"

// DefaultScanTimeout bounds one shared scan when Scanner.Timeout is unset.
const DefaultScanTimeout = time.Minute

// Extractor produces the feature vector for a URL.
type Extractor interface {
	Extract(ctx context.Context, raw string) (*features.Extraction, error)
}

// Classifier scores a feature vector.
type Classifier interface {
	Predict(vec features.Vector) (inference.Prediction, error)
}

// Report is the outcome of one scan.
type Report struct {
	URL        string                `json:"url"`
	Host       string                `json:"host"`
	Features   features.Vector       `json:"features"`
	Fallbacks  []features.Fallback   `json:"fallbacks,omitempty"`
	Verdict    Verdict               `json:"verdict"`
	Prediction *inference.Prediction `json:"prediction,omitempty"`
	ScannedAt  time.Time             `json:"scanned_at"`
	Duration   time.Duration         `json:"duration_ns"`
}

type Scanner struct {
	extractor  Extractor
	classifier Classifier
	db         *repository.DomainDB

	// PersistDetections writes a BLOCK rule for every host the model flags.
	PersistDetections bool
	// OnPhishing, when set, is called with the host of every phishing verdict.
	OnPhishing func(host string)
	// Timeout caps a scan independently of the callers waiting on it.
	Timeout time.Duration

	inflight singleflight.Group
}

// NewScanner wires the pipeline. classifier and db may be nil: without a
// classifier the verdict comes from the block-list alone, without a db no
// history is kept.
func NewScanner(ex Extractor, c Classifier, db *repository.DomainDB) *Scanner {
	return &Scanner{extractor: ex, classifier: c, db: db}
}

// Scan extracts, classifies and records one URL. Concurrent scans of the same
// URL share a single extraction. A caller whose ctx ends stops waiting, but
// the shared scan keeps running for the others until Timeout.
func (s *Scanner) Scan(ctx context.Context, raw string) (*Report, error) {
	key := strings.TrimSpace(raw)
	ch := s.inflight.DoChan(key, func() (any, error) {
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout())
		defer cancel()
		return s.scan(sctx, key)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Report), nil
	}
}

func (s *Scanner) timeout() time.Duration {
	if s.Timeout > 0 {
		return s.Timeout
	}
	return DefaultScanTimeout
}

func (s *Scanner) scan(ctx context.Context, raw string) (*Report, error) {
	start := time.Now()

	// 1. Extract Features
	x, err := s.extractor.Extract(ctx, raw)
	if err != nil {
		log.Printf("Feature extraction failed for %s: %v", raw, err)
		return nil, err
	}

	report := &Report{
		URL:       x.URL.Raw,
		Host:      x.URL.Host,
		Features:  x.Features,
		Fallbacks: x.Fallbacks,
		Verdict:   VerdictUnclassified,
		ScannedAt: start,
	}

	// 2. AI Prediction, or Database-Only mode without a model
	if s.classifier != nil {
		pred, err := s.classifier.Predict(x.Features)
		if err != nil {
			log.Printf("Prediction failed for %s: %v", raw, err)
		} else {
			report.Prediction = &pred
			report.Verdict = VerdictLegitimate
			if pred.Phishing {
				report.Verdict = VerdictPhishing
			}
		}
	}
	if report.Verdict == VerdictUnclassified {
		if v, _ := x.Features.Get(features.StatisticalReport); v == features.Phishing {
			report.Verdict = VerdictPhishing
		}
	}
	report.Duration = time.Since(start)

	if report.Verdict == VerdictPhishing {
		log.WithFields(log.Fields{"url": report.URL, "host": report.Host}).Warn("Phishing detected")
		s.persistDetection(report)
		if s.OnPhishing != nil {
			s.OnPhishing(report.Host)
		}
	}

	// 3. History
	s.record(report)
	return report, nil
}

func (s *Scanner) persistDetection(r *Report) {
	if s.db == nil || !s.PersistDetections || r.Prediction == nil {
		return
	}
	if err := s.db.InsertOrUpdate(r.Host, repository.ActionBlock, DetectionSource); err != nil {
		log.Printf("DB Write Error: %v", err)
	}
}

func (s *Scanner) record(r *Report) {
	if s.db == nil {
		return
	}
	vec, err := json.Marshal(r.Features)
	if err != nil {
		log.Printf("Could not encode features of %s: %v", r.URL, err)
		return
	}
	rec := repository.ScanRecord{
		URL:       r.URL,
		Host:      r.Host,
		Verdict:   string(r.Verdict),
		Features:  string(vec),
		Fallbacks: len(r.Fallbacks),
		ScannedAt: r.ScannedAt,
	}
	if r.Prediction != nil {
		rec.Probability = r.Prediction.Probability
	}
	if err := s.db.RecordScan(rec); err != nil {
		log.Printf("Could not record scan of %s: %v", r.URL, err)
	}
}

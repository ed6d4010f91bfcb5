package service

import (
	"context"
	"time"

	"github.com/franklinjsmith-create/SupplyVerify/metrics"
	"github.com/franklinjsmith-create/SupplyVerify/model"
	"github.com/franklinjsmith-create/SupplyVerify/pkg/logger"
	"github.com/franklinjsmith-create/SupplyVerify/registry"
)

// RecordFetcher loads a certification record for a registry ID.
type RecordFetcher interface {
	FetchRecord(ctx context.Context, id string) (*model.CertificationRecord, error)
	SourceURL(id string) string
}

// Verifier performs the per-operation step of a batch: fetch then match.
type Verifier struct {
	fetcher RecordFetcher
	metrics *metrics.Metrics
}

func NewVerifier(fetcher RecordFetcher, m *metrics.Metrics) *Verifier {
	return &Verifier{fetcher: fetcher, metrics: m}
}

// Verify never fails: a fetch error becomes a result with status Failed and
// every requested product reported missing.
func (v *Verifier) Verify(ctx context.Context, op model.OperationInput) model.VerificationResult {
	start := time.Now()
	record, err := v.fetcher.FetchRecord(ctx, op.ID)
	v.metrics.ObserveFetch(registry.Category(err), time.Since(start))

	var result model.VerificationResult
	if err != nil {
		logger.Warn(ctx, "registry fetch failed",
			"registry_id", op.ID,
			"operation", op.OperationName,
			"error", err,
		)
		result = v.failed(op, err)
	} else {
		result = v.verified(op, record)
	}
	v.metrics.IncrementResult(result.CertificationStatus)
	return result
}

func (v *Verifier) verified(op model.OperationInput, record *model.CertificationRecord) model.VerificationResult {
	matching, missing := Match(op.Products, record.AllCertifiedProducts)

	status := model.CertificationNotCertified
	if record.IsCertified() {
		status = model.CertificationCertified
	}
	date := model.NotFound
	if record.EffectiveDate != nil {
		date = *record.EffectiveDate
	}
	// The registry's spelling wins; the caller's name only fills a gap.
	name := record.OperationName
	if name == "" || name == model.NotFound {
		name = op.OperationName
	}

	return model.VerificationResult{
		OperationName:        name,
		ID:                   op.ID,
		Certifier:            record.Certifier,
		CertificationStatus:  status,
		EffectiveDate:        date,
		AllCertifiedProducts: record.AllCertifiedProducts,
		MatchingProducts:     matching,
		MissingProducts:      missing,
		SourceURL:            v.fetcher.SourceURL(op.ID),
		Scopes:               record.Scopes,
	}
}

func (v *Verifier) failed(op model.OperationInput, err error) model.VerificationResult {
	missing := make([]string, len(op.Products))
	copy(missing, op.Products)

	return model.VerificationResult{
		OperationName:        op.OperationName,
		ID:                   op.ID,
		Certifier:            model.ErrorCertifier,
		CertificationStatus:  model.CertificationFailed,
		EffectiveDate:        model.NotFound,
		AllCertifiedProducts: []string{},
		MatchingProducts:     []string{},
		MissingProducts:      missing,
		SourceURL:            v.fetcher.SourceURL(op.ID),
		Error:                err.Error(),
	}
}

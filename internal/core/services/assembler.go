package services

import (
	"net/http"

	"github.com/open-crosspost/open-crosspost-proxy-service-sub001/internal/core/domain"
)

type BatchSummary struct {
	Total     int `json:"total"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

// BatchResponse est le corps renvoyé par tous les endpoints d'action.
type BatchResponse struct {
	Summary BatchSummary           `json:"summary"`
	Results []domain.SuccessDetail `json:"results"`
	Errors  []domain.ErrorDetail   `json:"errors"`
}

// Assemble choisit le statut HTTP global d'un lot :
// 200 tout réussi, 207 mixte, statut du premier code d'erreur si tout a échoué.
func Assemble(outcome domain.BatchOutcome) (int, BatchResponse, error) {
	results := outcome.Successes
	if results == nil {
		results = []domain.SuccessDetail{}
	}
	errs := outcome.Errors
	if errs == nil {
		errs = []domain.ErrorDetail{}
	}

	body := BatchResponse{
		Summary: BatchSummary{
			Total:     len(results) + len(errs),
			Succeeded: len(results),
			Failed:    len(errs),
		},
		Results: results,
		Errors:  errs,
	}

	switch {
	case len(results) == 0 && len(errs) == 0:
		return http.StatusInternalServerError, body, domain.ErrEmptyOutcome
	case len(errs) == 0:
		return http.StatusOK, body, nil
	case len(results) == 0:
		return errs[0].Code.HTTPStatus(), body, nil
	default:
		return http.StatusMultiStatus, body, nil
	}
}

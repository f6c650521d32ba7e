package handler

import (
	"net/http"

	"github.com/boddenberg/savings-ledger-go/internal/domain"
	"github.com/boddenberg/savings-ledger-go/internal/service"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// ============================================================
// Saving Type Handlers
// ============================================================

func listTypesHandler(svc *service.CatalogService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /api/typesaving")
		defer span.End()

		types, err := svc.ListTypes(ctx)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, types)
	}
}

func getTypeHandler(svc *service.CatalogService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /api/typesaving/{typeId}")
		defer span.End()

		typeID, err := parseID(chi.URLParam(r, "typeId"), "typeId")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		t, err := svc.GetType(ctx, typeID)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, t)
	}
}

func createTypeHandler(svc *service.CatalogService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /api/typesaving")
		defer span.End()

		var req domain.SavingType
		if err := decodeBody(r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		created, err := svc.CreateType(ctx, req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusCreated, created)
	}
}

func updateTypeHandler(svc *service.CatalogService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PUT /api/typesaving/{typeId}")
		defer span.End()

		typeID, err := parseID(chi.URLParam(r, "typeId"), "typeId")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		var patch domain.SavingTypePatch
		if err := decodeBody(r, &patch); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		updated, err := svc.UpdateType(ctx, typeID, patch)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, updated)
	}
}

func deactivateTypeHandler(svc *service.CatalogService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "DELETE /api/typesaving/{typeId}")
		defer span.End()

		typeID, err := parseID(chi.URLParam(r, "typeId"), "typeId")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		if _, err := svc.DeactivateType(ctx, typeID); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, domain.SuccessResponse{Message: "saving type deactivated", ID: chi.URLParam(r, "typeId")})
	}
}

func regulationsHandler(svc *service.CatalogService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /api/regulation")
		defer span.End()

		reg, err := svc.Regulations(ctx)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, reg)
	}
}

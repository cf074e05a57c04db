package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"docsync/internal/database"
	"docsync/internal/model"
	"docsync/internal/repository/sqldb"
	"docsync/internal/service"
	serviceMocks "docsync/internal/service/mocks"
)

func TestHealthCheck(t *testing.T) {
	db, dbMock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()

	app := fiber.New()
	app.Get("/health", HealthCheck(sqldb.NewDocumentStore(db, database.DialectPostgres)))

	t.Run("healthy", func(t *testing.T) {
		dbMock.ExpectPing().WillReturnError(nil)

		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusOK, resp.StatusCode)

		var body map[string]string
		json.NewDecoder(resp.Body).Decode(&body)
		assert.Equal(t, "healthy", body["status"])
	})

	t.Run("unhealthy", func(t *testing.T) {
		dbMock.ExpectPing().WillReturnError(errors.New("db error"))

		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

		var body errorPayload
		json.NewDecoder(resp.Body).Decode(&body)
		assert.Equal(t, "SERVICE_UNAVAILABLE", body.Error.Code)
	})

	t.Run("record store never opened", func(t *testing.T) {
		app := fiber.New()
		app.Get("/health", HealthCheck(nil))

		resp, _ := app.Test(httptest.NewRequest(http.MethodGet, "/health", nil))

		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	})
}

func TestLivenessProbe(t *testing.T) {
	app := fiber.New()
	app.Get("/healthz", LivenessProbe())

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	resp, _ := app.Test(req)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := prometheus.NewCounter(prometheus.CounterOpts{Name: "docsync_test_total", Help: "test"})
	reg.MustRegister(c)
	c.Inc()

	app := fiber.New()
	app.Get("/metrics", Metrics(reg))

	resp, _ := app.Test(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), "docsync_test_total 1")
}

func testMeta() model.Metadata {
	return model.Metadata{
		CompanyCode: "JP01",
		CompanyName: "JP Bil",
		Date:        "2024-05-02",
		Car:         model.Car{Brand: "Toyota", Model: "Yaris"},
	}
}

func TestSaveDocument(t *testing.T) {
	mockSvc := new(serviceMocks.MockDocumentService)
	app := fiber.New()
	app.Post("/documents", SaveDocument(mockSvc))

	dataURI := "data:application/pdf;base64,JVBERi0xLjQ="
	body := `{"entry":{"companyCode":"JP01","companyName":"JP Bil","date":"2024-05-02","car":{"brand":"Toyota","model":"Yaris"}},"dataUri":"` + dataURI + `"}`

	t.Run("success", func(t *testing.T) {
		expected := &service.SaveResult{ID: uuid.NewString(), FileName: "jp_bilpleie_toyota_yaris_2024-05-02_1714642200000.pdf"}
		mockSvc.On("Save", mock.Anything, testMeta(), dataURI).Return(expected, nil).Once()

		// text/plain like the delivery wire format; the body is still JSON
		req := httptest.NewRequest(http.MethodPost, "/documents", strings.NewReader(body))
		req.Header.Set("Content-Type", "text/plain;charset=utf-8")
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusCreated, resp.StatusCode)

		var result service.SaveResult
		json.NewDecoder(resp.Body).Decode(&result)
		assert.Equal(t, *expected, result)
		mockSvc.AssertExpectations(t)
	})

	t.Run("numeric company code is accepted", func(t *testing.T) {
		numeric := `{"entry":{"companyCode":1234,"car":{"brand":"Kia","regNr":"AB12345"}},"dataUri":"` + dataURI + `"}`
		mockSvc.On("Save", mock.Anything, mock.MatchedBy(func(m model.Metadata) bool {
			return m.CompanyCode == "1234" && m.Car.Brand == "Kia" && m.Car.Extra["regNr"] == "AB12345"
		}), dataURI).Return(&service.SaveResult{ID: "doc-1", FileName: "a.pdf"}, nil).Once()

		resp, _ := app.Test(httptest.NewRequest(http.MethodPost, "/documents", strings.NewReader(numeric)))

		assert.Equal(t, http.StatusCreated, resp.StatusCode)
		mockSvc.AssertExpectations(t)
	})

	t.Run("invalid body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/documents", strings.NewReader("{"))
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		var res errorPayload
		json.NewDecoder(resp.Body).Decode(&res)
		assert.Equal(t, "INVALID_BODY", res.Error.Code)
	})

	t.Run("missing payload", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/documents", strings.NewReader(`{"entry":{}}`))
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		var res errorPayload
		json.NewDecoder(resp.Body).Decode(&res)
		assert.Equal(t, "PAYLOAD_REQUIRED", res.Error.Code)
	})

	errCases := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"undecodable data uri", service.ErrInvalidPayload, http.StatusBadRequest, "INVALID_PAYLOAD"},
		{"every backend failed", service.ErrPersistence, http.StatusInternalServerError, "PERSISTENCE_FAILED"},
		{"unexpected", errors.New("boom"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}
	for _, tc := range errCases {
		t.Run(tc.name, func(t *testing.T) {
			mockSvc.On("Save", mock.Anything, mock.Anything, mock.Anything).Return(nil, tc.err).Once()

			req := httptest.NewRequest(http.MethodPost, "/documents", strings.NewReader(body))
			resp, _ := app.Test(req)

			assert.Equal(t, tc.wantStatus, resp.StatusCode)
			var res errorPayload
			json.NewDecoder(resp.Body).Decode(&res)
			assert.Equal(t, tc.wantCode, res.Error.Code)
			mockSvc.AssertExpectations(t)
		})
	}
}

func TestListDocuments(t *testing.T) {
	mockSvc := new(serviceMocks.MockDocumentService)
	app := fiber.New()
	app.Get("/documents", ListDocuments(mockSvc))

	t.Run("success", func(t *testing.T) {
		docs := []model.Document{{
			ID:       uuid.NewString(),
			FileName: "a.pdf",
			Metadata: testMeta(),
			Payload:  []byte("%PDF-1.4"),
			DataURI:  "data:application/pdf;base64,JVBERi0xLjQ=",
		}}
		mockSvc.On("ListPending", mock.Anything).Return(docs, nil).Once()

		req := httptest.NewRequest(http.MethodGet, "/documents", nil)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusOK, resp.StatusCode)

		raw, _ := io.ReadAll(resp.Body)
		assert.NotContains(t, string(raw), "JVBERi0xLjQ", "payload must not be listed")

		var result documentList
		require.NoError(t, json.Unmarshal(raw, &result))
		assert.Len(t, result.Items, 1)
		assert.Equal(t, 1, result.Total)
		assert.Equal(t, "Toyota", result.Items[0].Metadata.Car.Brand)
		mockSvc.AssertExpectations(t)
	})

	t.Run("empty", func(t *testing.T) {
		mockSvc.On("ListPending", mock.Anything).Return([]model.Document{}, nil).Once()

		resp, _ := app.Test(httptest.NewRequest(http.MethodGet, "/documents", nil))

		raw, _ := io.ReadAll(resp.Body)
		assert.JSONEq(t, `{"items":[],"total":0}`, string(raw))
	})

	t.Run("service error", func(t *testing.T) {
		mockSvc.On("ListPending", mock.Anything).Return(nil, errors.New("service error")).Once()

		req := httptest.NewRequest(http.MethodGet, "/documents", nil)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
		mockSvc.AssertExpectations(t)
	})

	t.Run("no backend", func(t *testing.T) {
		mockSvc.On("ListPending", mock.Anything).Return(nil, service.ErrBackendUnavailable).Once()

		resp, _ := app.Test(httptest.NewRequest(http.MethodGet, "/documents", nil))

		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	})
}

func TestGetDocument(t *testing.T) {
	mockSvc := new(serviceMocks.MockDocumentService)
	app := fiber.New()
	app.Get("/documents/:id", GetDocument(mockSvc))

	t.Run("success", func(t *testing.T) {
		id := uuid.NewString()
		expectedDoc := &model.Document{ID: id, FileName: "a.pdf", Metadata: testMeta()}
		mockSvc.On("FindByID", mock.Anything, id).Return(expectedDoc, nil).Once()

		req := httptest.NewRequest(http.MethodGet, "/documents/"+id, nil)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusOK, resp.StatusCode)

		var result model.Document
		json.NewDecoder(resp.Body).Decode(&result)
		assert.Equal(t, id, result.ID)
		assert.Equal(t, "JP01", result.Metadata.CompanyCode)
		mockSvc.AssertExpectations(t)
	})

	t.Run("not found", func(t *testing.T) {
		id := uuid.NewString()
		mockSvc.On("FindByID", mock.Anything, id).Return(nil, service.ErrNotFound).Once()

		req := httptest.NewRequest(http.MethodGet, "/documents/"+id, nil)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		var res errorPayload
		json.NewDecoder(resp.Body).Decode(&res)
		assert.Equal(t, "NOT_FOUND", res.Error.Code)
		mockSvc.AssertExpectations(t)
	})

	t.Run("invalid id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/documents/invalid-uuid", nil)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		var res errorPayload
		json.NewDecoder(resp.Body).Decode(&res)
		assert.Equal(t, "INVALID_ID", res.Error.Code)
	})

	t.Run("service error", func(t *testing.T) {
		id := uuid.NewString()
		mockSvc.On("FindByID", mock.Anything, id).Return(nil, errors.New("db error")).Once()

		req := httptest.NewRequest(http.MethodGet, "/documents/"+id, nil)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
		mockSvc.AssertExpectations(t)
	})
}

func TestGetDocumentContent(t *testing.T) {
	mockSvc := new(serviceMocks.MockDocumentService)
	app := fiber.New()
	app.Get("/documents/:id/content", GetDocumentContent(mockSvc))

	t.Run("success", func(t *testing.T) {
		id := uuid.NewString()
		pdf := []byte("%PDF-1.4\n")
		mockSvc.On("FindByID", mock.Anything, id).Return(&model.Document{ID: id, FileName: "a.pdf", Payload: pdf}, nil).Once()

		resp, _ := app.Test(httptest.NewRequest(http.MethodGet, "/documents/"+id+"/content", nil))

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "application/pdf", resp.Header.Get("Content-Type"))
		assert.Equal(t, `inline; filename="a.pdf"`, resp.Header.Get("Content-Disposition"))
		got, _ := io.ReadAll(resp.Body)
		assert.Equal(t, pdf, got)
		mockSvc.AssertExpectations(t)
	})

	t.Run("not found", func(t *testing.T) {
		id := uuid.NewString()
		mockSvc.On("FindByID", mock.Anything, id).Return(nil, service.ErrNotFound).Once()

		resp, _ := app.Test(httptest.NewRequest(http.MethodGet, "/documents/"+id+"/content", nil))

		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}

func TestDeleteDocument(t *testing.T) {
	mockSvc := new(serviceMocks.MockDocumentService)
	app := fiber.New()
	app.Delete("/documents/:id", DeleteDocument(mockSvc))

	t.Run("success", func(t *testing.T) {
		id := uuid.NewString()
		mockSvc.On("Delete", mock.Anything, id).Return(nil).Once()

		req := httptest.NewRequest(http.MethodDelete, "/documents/"+id, nil)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusNoContent, resp.StatusCode)
		mockSvc.AssertExpectations(t)
	})

	t.Run("invalid id", func(t *testing.T) {
		resp, _ := app.Test(httptest.NewRequest(http.MethodDelete, "/documents/123", nil))

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("service error", func(t *testing.T) {
		id := uuid.NewString()
		mockSvc.On("Delete", mock.Anything, id).Return(errors.New("delete error")).Once()

		req := httptest.NewRequest(http.MethodDelete, "/documents/"+id, nil)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
		mockSvc.AssertExpectations(t)
	})
}

func TestRunSync(t *testing.T) {
	mockSyncer := new(serviceMocks.MockSyncer)
	app := fiber.New()
	app.Post("/sync", RunSync(mockSyncer))

	t.Run("completed", func(t *testing.T) {
		mockSyncer.On("RunSync", mock.Anything).Return(service.SyncReport{Total: 3, Delivered: 2, Failed: 1}, nil).Once()

		resp, _ := app.Test(httptest.NewRequest(http.MethodPost, "/sync", nil))

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		var report service.SyncReport
		json.NewDecoder(resp.Body).Decode(&report)
		assert.Equal(t, 2, report.Delivered)
		assert.Equal(t, 1, report.Failed)
	})

	t.Run("already running", func(t *testing.T) {
		mockSyncer.On("RunSync", mock.Anything).Return(service.SyncReport{Skipped: true}, nil).Once()

		resp, _ := app.Test(httptest.NewRequest(http.MethodPost, "/sync", nil))

		assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	})

	t.Run("scan failed", func(t *testing.T) {
		mockSyncer.On("RunSync", mock.Anything).Return(service.SyncReport{}, errors.New("db closed")).Once()

		resp, _ := app.Test(httptest.NewRequest(http.MethodPost, "/sync", nil))

		assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
		var res errorPayload
		json.NewDecoder(resp.Body).Decode(&res)
		assert.Equal(t, "SYNC_FAILED", res.Error.Code)
	})

	mockSyncer.AssertExpectations(t)
}

func TestRouting(t *testing.T) {
	app := fiber.New(fiber.Config{
		ErrorHandler: ErrorHandler(),
	})

	mockSvc := new(serviceMocks.MockDocumentService)
	RegisterRoutes(app, nil, mockSvc, new(serviceMocks.MockSyncer), prometheus.NewRegistry())

	t.Run("not found route", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/non-existent", nil)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		var res errorPayload
		json.NewDecoder(resp.Body).Decode(&res)
		assert.Equal(t, "NOT_FOUND", res.Error.Code)
	})

	t.Run("method not allowed", func(t *testing.T) {
		// Health endpoint only allows GET
		req := httptest.NewRequest(http.MethodPost, "/health", nil)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
		var res errorPayload
		json.NewDecoder(resp.Body).Decode(&res)
		assert.Equal(t, "METHOD_NOT_ALLOWED", res.Error.Code)
	})

	t.Run("content route wins over metadata route", func(t *testing.T) {
		id := uuid.NewString()
		mockSvc.On("FindByID", mock.Anything, id).Return(&model.Document{ID: id, FileName: "a.pdf", Payload: []byte("x")}, nil).Once()

		resp, _ := app.Test(httptest.NewRequest(http.MethodGet, "/documents/"+id+"/content", nil))

		assert.Equal(t, "application/pdf", resp.Header.Get("Content-Type"))
	})
}

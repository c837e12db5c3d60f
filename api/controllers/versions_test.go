package controllers

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/reviewhub-backend/internal/versions"
	"github.com/angelmondragon/reviewhub-backend/pkg/db/models"
)

type stubVersions struct {
	versions.Service
	uploaded   *versions.UploadVersionInput
	registered *versions.CreateVersionInput
}

func (s *stubVersions) UploadVersion(_ context.Context, input versions.UploadVersionInput) (*models.AssetVersion, error) {
	s.uploaded = &input
	return &models.AssetVersion{ID: uuid.New(), AssetID: input.AssetID, VersionNumber: 1}, nil
}

func (s *stubVersions) CreateVersion(_ context.Context, input versions.CreateVersionInput) (*models.AssetVersion, error) {
	s.registered = &input
	return &models.AssetVersion{ID: uuid.New(), AssetID: input.AssetID, VersionNumber: 2}, nil
}

func multipartBody(t *testing.T, fields map[string]string, fileName string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	part, err := mw.CreateFormFile("file", fileName)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestCreateVersionUploadsMultipartFile(t *testing.T) {
	svc := &stubVersions{}
	userID, assetID := uuid.New(), uuid.New()
	body, contentType := multipartBody(t, map[string]string{"notes": "color pass"}, "cut-v2.mp4", []byte("frames"))

	req := httptest.NewRequest(http.MethodPost, "/api/assets/"+assetID.String()+"/versions", body)
	req.Header.Set("Content-Type", contentType)
	req = withRoute(asUser(req, userID), map[string]string{"assetId": assetID.String()})

	resp := serve(CreateVersion(svc, 1<<20, testLogger()), req)

	require.Equal(t, http.StatusCreated, resp.Code)
	require.NotNil(t, svc.uploaded)
	require.Equal(t, assetID, svc.uploaded.AssetID)
	require.Equal(t, userID, svc.uploaded.UploadedBy)
	require.Equal(t, "cut-v2.mp4", svc.uploaded.FileName)
	require.Equal(t, []byte("frames"), svc.uploaded.Data)
	require.Equal(t, "color pass", *svc.uploaded.Notes)
}

func TestCreateVersionRejectsOversizedUpload(t *testing.T) {
	svc := &stubVersions{}
	assetID := uuid.New()
	body, contentType := multipartBody(t, nil, "big.mov", bytes.Repeat([]byte("x"), 2048))

	req := httptest.NewRequest(http.MethodPost, "/", body)
	req.Header.Set("Content-Type", contentType)
	req = withRoute(asUser(req, uuid.New()), map[string]string{"assetId": assetID.String()})

	resp := serve(CreateVersion(svc, 1024, testLogger()), req)

	require.Equal(t, http.StatusRequestEntityTooLarge, resp.Code)
	require.Nil(t, svc.uploaded)
}

func TestCreateVersionRegistersStoredFile(t *testing.T) {
	svc := &stubVersions{}
	assetID := uuid.New()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"fileUrl":"https://cdn.example.com/v2.mp4","sizeBytes":42}`))
	req = withRoute(asUser(req, uuid.New()), map[string]string{"assetId": assetID.String()})

	resp := serve(CreateVersion(svc, 1024, testLogger()), req)

	require.Equal(t, http.StatusCreated, resp.Code)
	require.NotNil(t, svc.registered)
	require.Equal(t, "https://cdn.example.com/v2.mp4", svc.registered.FileURL)
	require.EqualValues(t, 42, *svc.registered.SizeBytes)
}

func TestCompareVersionsRequiresBothIDs(t *testing.T) {
	svc := &stubVersions{}
	req := asUser(httptest.NewRequest(http.MethodGet, "/api/versions/compare?a="+uuid.NewString(), nil), uuid.New())

	resp := serve(CompareVersions(svc, testLogger()), req)
	require.Equal(t, http.StatusBadRequest, resp.Code)
}

package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xxxsen/docchat/internal/chunker"
	"github.com/xxxsen/docchat/internal/filestore"
	"github.com/xxxsen/docchat/internal/loader"
	"github.com/xxxsen/docchat/internal/model"
	"github.com/xxxsen/docchat/internal/pkg/jwt"
	"github.com/xxxsen/docchat/internal/queue"
	"github.com/xxxsen/docchat/internal/service"
	"github.com/xxxsen/docchat/internal/testutil"
	"github.com/xxxsen/docchat/internal/vectorindex"
	"github.com/xxxsen/docchat/internal/worker"
)

type testServer struct {
	engine *gin.Engine
	queue  *queue.MemoryQueue
	pool   *worker.Pool
	gen    *testutil.FakeGenerator
	store  *testutil.MemoryConversationStore
}

func newTestServer(t *testing.T, secret []byte) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	files := filestore.NewLocal(t.TempDir())
	q := queue.NewMemory()
	index := vectorindex.NewMemory()
	embedder := &testutil.FakeEmbedder{}
	gen := &testutil.FakeGenerator{Answer: "the answer"}
	store := testutil.NewMemoryConversationStore()
	ld := loader.New()

	jobs := service.NewJobService(files, q, ld)
	ingest := service.NewIngestService(files, ld, chunker.New(chunker.WithChunkSize(300), chunker.WithOverlap(50)), embedder, index)
	convs := service.NewConversationService(store)
	chat := service.NewChatService(
		service.NewRetrievalService(embedder, index),
		service.NewAnswerService(gen, time.Second),
		convs,
		service.ChatConfig{ChatTopK: 2, SummaryTopK: 10},
	)

	r := gin.New()
	RegisterRoutes(r.Group("/"), RouterDeps{
		Uploads:       NewUploadHandler(jobs, 1024, []string{".txt", ".md", "pdf"}),
		Conversations: NewConversationHandler(convs),
		Chat:          NewChatHandler(chat, convs),
		JWTSecret:     secret,
	})
	return &testServer{
		engine: r,
		queue:  q,
		pool:   worker.NewPool(q, ingest, worker.Config{}),
		gen:    gen,
		store:  store,
	}
}

func (s *testServer) do(t *testing.T, method, path string, body interface{}, token string) *httptest.ResponseRecorder {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(raw)
	} else {
		rd = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)
	return w
}

func (s *testServer) upload(t *testing.T, path, field, filename, content string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile(field, filename)
	require.NoError(t, err)
	_, err = fw.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, dst interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), dst))
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, nil)
	for _, p := range []string{"/", "/healthz"} {
		w := s.do(t, http.MethodGet, p, nil, "")
		require.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"msg":"All Works"}`, w.Body.String())
	}
}

func TestUploadPollAndChat(t *testing.T) {
	s := newTestServer(t, nil)
	w := s.upload(t, "/upload", "file", "contract.txt", "The termination clause requires thirty days written notice.")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var up struct {
		JobID string `json:"jobId"`
	}
	decode(t, w, &up)
	require.NotEmpty(t, up.JobID)

	w = s.do(t, http.MethodGet, "/upload-status/"+up.JobID, nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"state":"queued"}`, w.Body.String())

	handled, err := s.pool.RunOnce(context.Background())
	require.NoError(t, err)
	require.True(t, handled)
	w = s.do(t, http.MethodGet, "/upload-status/"+up.JobID, nil, "")
	assert.JSONEq(t, `{"state":"completed"}`, w.Body.String())

	w = s.do(t, http.MethodPost, "/conversations", gin.H{"userId": "u1"}, "")
	require.Equal(t, http.StatusOK, w.Code)
	var conv model.Conversation
	decode(t, w, &conv)
	assert.Equal(t, model.DefaultConversationTitle, conv.Title)

	// empty conversations stay hidden
	w = s.do(t, http.MethodGet, "/conversations/u1", nil, "")
	assert.JSONEq(t, `[]`, w.Body.String())

	w = s.do(t, http.MethodPost, "/chat", gin.H{"message": "What is the termination clause?", "conversationId": strconv.FormatInt(conv.ID, 10)}, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var res struct {
		Message string `json:"message"`
		Docs    []struct {
			Text   string `json:"text"`
			Source string `json:"source"`
			Page   *int   `json:"page"`
		} `json:"docs"`
	}
	decode(t, w, &res)
	assert.Equal(t, "the answer", res.Message)
	require.NotEmpty(t, res.Docs)
	assert.LessOrEqual(t, len(res.Docs), 2)
	assert.Equal(t, "contract.txt", res.Docs[0].Source)
	assert.Contains(t, w.Body.String(), `"page":null`)

	w = s.do(t, http.MethodGet, "/conversations/u1", nil, "")
	var list []model.Conversation
	decode(t, w, &list)
	require.Len(t, list, 1)
	assert.Equal(t, "What is the termination clause?", list[0].Title)

	w = s.do(t, http.MethodGet, "/conversations/"+strconv.FormatInt(conv.ID, 10)+"/messages", nil, "")
	var msgs []model.Message
	decode(t, w, &msgs)
	require.Len(t, msgs, 2)
	assert.Equal(t, model.RoleUser, msgs[0].Role)
	assert.Equal(t, model.RoleAssistant, msgs[1].Role)
	assert.NotEmpty(t, msgs[1].Documents)
}

func TestUploadPDFFieldAndRejections(t *testing.T) {
	s := newTestServer(t, nil)
	w := s.upload(t, "/upload/pdf", "pdf", "paper.pdf", "%PDF-1.4")
	assert.Equal(t, http.StatusOK, w.Code)

	w = s.upload(t, "/upload", "pdf", "paper.pdf", "%PDF-1.4")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.upload(t, "/upload", "file", "image.png", "png")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.upload(t, "/upload", "file", "big.txt", strings.Repeat("x", 2048))
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func TestUnknownJobIs404(t *testing.T) {
	s := newTestServer(t, nil)
	w := s.do(t, http.MethodGet, "/upload-status/nope", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestChatValidation(t *testing.T) {
	s := newTestServer(t, nil)
	w := s.do(t, http.MethodPost, "/chat", gin.H{"message": ""}, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = s.do(t, http.MethodPost, "/chat", gin.H{"message": "hi", "conversationId": "abc"}, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = s.do(t, http.MethodPost, "/chat", gin.H{"message": "hi", "conversationId": 42}, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, 0, s.gen.Calls)
}

func TestChatWithoutConversationPersistsNothing(t *testing.T) {
	s := newTestServer(t, nil)
	w := s.do(t, http.MethodPost, "/chat", gin.H{"message": "hello"}, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 0, s.store.MessageCount())
}

func TestGenerationFailureReturnsGenericError(t *testing.T) {
	s := newTestServer(t, nil)
	s.gen.Err = assert.AnError
	w := s.do(t, http.MethodPost, "/chat", gin.H{"message": "hello"}, "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), assert.AnError.Error())
}

func TestSummarizeEmptyIndex(t *testing.T) {
	s := newTestServer(t, nil)
	w := s.do(t, http.MethodPost, "/summarize", gin.H{"userId": "u1"}, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var res struct {
		Summary        string            `json:"summary"`
		ConversationID int64             `json:"conversationId"`
		Docs           []json.RawMessage `json:"docs"`
	}
	decode(t, w, &res)
	assert.Equal(t, "the answer", res.Summary)
	assert.NotZero(t, res.ConversationID)
	assert.NotNil(t, res.Docs)
	assert.Empty(t, res.Docs)

	w = s.do(t, http.MethodPost, "/summarize", gin.H{}, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDeleteCascade(t *testing.T) {
	s := newTestServer(t, nil)
	w := s.do(t, http.MethodPost, "/conversations", gin.H{"userId": "u1"}, "")
	var conv model.Conversation
	decode(t, w, &conv)
	id := strconv.FormatInt(conv.ID, 10)
	w = s.do(t, http.MethodPost, "/chat", gin.H{"message": "hello", "conversationId": conv.ID}, "")
	require.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodDelete, "/conversations/"+id, nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"success":true}`, w.Body.String())

	w = s.do(t, http.MethodGet, "/conversations/"+id+"/messages", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())

	w = s.do(t, http.MethodDelete, "/conversations/"+id, nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAuthIdentityMustMatch(t *testing.T) {
	secret := []byte("k")
	s := newTestServer(t, secret)
	token, err := jwt.GenerateToken("u1", secret, time.Hour)
	require.NoError(t, err)
	intruder, err := jwt.GenerateToken("u2", secret, time.Hour)
	require.NoError(t, err)

	w := s.do(t, http.MethodPost, "/conversations", gin.H{}, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(t, http.MethodPost, "/conversations", gin.H{"userId": "u2"}, token)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(t, http.MethodPost, "/conversations", gin.H{}, token)
	require.Equal(t, http.StatusOK, w.Code)
	var conv model.Conversation
	decode(t, w, &conv)
	assert.Equal(t, "u1", conv.UserID)

	w = s.do(t, http.MethodPost, "/chat", gin.H{"message": "hello", "conversationId": conv.ID}, intruder)
	assert.Equal(t, http.StatusForbidden, w.Code)
	w = s.do(t, http.MethodDelete, "/conversations/"+strconv.FormatInt(conv.ID, 10), nil, intruder)
	assert.Equal(t, http.StatusForbidden, w.Code)
	w = s.do(t, http.MethodGet, "/conversations/u1", nil, intruder)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestChatEmptyMessageSkipsOwnershipLookup(t *testing.T) {
	secret := []byte("k")
	s := newTestServer(t, secret)
	token, err := jwt.GenerateToken("u1", secret, time.Hour)
	require.NoError(t, err)

	w := s.do(t, http.MethodPost, "/chat", gin.H{"conversationId": 7}, token)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = s.do(t, http.MethodPost, "/chat", gin.H{"message": "  ", "conversationId": 7}, token)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, 0, s.store.Lookups())
	assert.Equal(t, 0, s.gen.Calls)
}

func TestFlexibleID(t *testing.T) {
	var req chatRequest
	require.NoError(t, json.Unmarshal([]byte(`{"message":"x","conversationId":7}`), &req))
	require.NotNil(t, req.ConversationID.Value)
	assert.Equal(t, int64(7), *req.ConversationID.Value)
	require.NoError(t, json.Unmarshal([]byte(`{"message":"x","conversationId":"8"}`), &req))
	assert.Equal(t, int64(8), *req.ConversationID.Value)
	req = chatRequest{}
	require.NoError(t, json.Unmarshal([]byte(`{"message":"x"}`), &req))
	assert.Nil(t, req.ConversationID.Value)
	assert.Error(t, json.Unmarshal([]byte(`{"conversationId":-1}`), &req))
}

func TestFormatUploadLimit(t *testing.T) {
	assert.Equal(t, "20MB", formatUploadLimit(20*1024*1024))
	assert.Equal(t, "1KB", formatUploadLimit(10))
	assert.Equal(t, "512KB", formatUploadLimit(512*1024))
	assert.Equal(t, "0B", formatUploadLimit(0))
}

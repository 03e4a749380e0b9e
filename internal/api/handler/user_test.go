package handler

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qs3c/guild_server/internal/api/middleware"
	"github.com/qs3c/guild_server/internal/model"
	"github.com/qs3c/guild_server/internal/model/dto"
	"github.com/qs3c/guild_server/internal/pkg/response"
	"github.com/qs3c/guild_server/internal/testutil"
)

type stubUploader struct {
	uploads int
}

func (s *stubUploader) UploadAvatar(userID int64, data []byte, ext string) (string, error) {
	s.uploads++
	return "https://cdn.example.com/avatars/test" + ext, nil
}

func userRouter(env *testEnv) *gin.Engine {
	h := NewUserHandler(env.users)
	router := gin.New()
	user := router.Group("/user", middleware.Auth(testJWTSecret))
	user.GET("/profile", h.GetProfile)
	user.PUT("/profile", h.UpdateProfile)
	user.POST("/avatar", h.UploadAvatar)
	return router
}

func avatarRequest(t *testing.T, token, filename string, content []byte) *http.Request {
	t.Helper()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/user/avatar", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

func TestUserHandler_GetProfile(t *testing.T) {
	env := newTestEnv(t, nil)
	user := testutil.TestUser(t, env.db, testutil.WithUsername("profileuser"), testutil.WithRoles(model.RoleGuide))

	w := performRequest(userRouter(env), http.MethodGet, "/user/profile", nil, tokenFor(t, user))
	var info dto.UserInfo
	decodeData(t, w, &info)
	assert.Equal(t, user.ID, info.ID)
	assert.Equal(t, "profileuser", info.Username)
	assert.Equal(t, []string{"guide"}, info.Roles)

	w = performRequest(userRouter(env), http.MethodGet, "/user/profile", nil, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestUserHandler_UpdateProfile(t *testing.T) {
	env := newTestEnv(t, nil)
	user := testutil.TestUser(t, env.db, testutil.WithUsername("before"))
	testutil.TestUser(t, env.db, testutil.WithUsername("taken"))
	token := tokenFor(t, user)

	w := performRequest(userRouter(env), http.MethodPut, "/user/profile",
		map[string]string{"username": "after", "bio": "hello"}, token)
	var info dto.UserInfo
	decodeData(t, w, &info)
	assert.Equal(t, "after", info.Username)
	assert.Equal(t, "hello", info.Bio)

	w = performRequest(userRouter(env), http.MethodPut, "/user/profile", map[string]string{"username": "taken"}, token)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Username already taken", parseResponse(t, w).Message)

	w = performRequest(userRouter(env), http.MethodPut, "/user/profile", map[string]string{"username": "ab"}, token)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUserHandler_UploadAvatar(t *testing.T) {
	uploader := &stubUploader{}
	env := newTestEnv(t, uploader)
	user := env.user(t, model.RoleUser)
	router := userRouter(env)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, avatarRequest(t, tokenFor(t, user), "me.PNG", []byte("fake png bytes")))

	var data map[string]string
	decodeData(t, w, &data)
	assert.Equal(t, "https://cdn.example.com/avatars/test.png", data["avatar_url"])
	assert.Equal(t, 1, uploader.uploads)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, avatarRequest(t, tokenFor(t, user), "notes.txt", []byte("text")))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, 1, uploader.uploads)

	w = performRequest(router, http.MethodPost, "/user/avatar", nil, tokenFor(t, user))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, response.CodeParamError, parseResponse(t, w).Code)
}

func TestUserHandler_UploadAvatar_Disabled(t *testing.T) {
	env := newTestEnv(t, nil)
	user := env.user(t, model.RoleUser)

	w := httptest.NewRecorder()
	userRouter(env).ServeHTTP(w, avatarRequest(t, tokenFor(t, user), "me.png", []byte("png")))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Avatar upload is not configured", parseResponse(t, w).Message)
}

package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/shinmentakezo07/shinway-sub001/model"
)

func setupTestDB(t *testing.T) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&model.Organization{}, &model.Project{}, &model.ApiKey{},
		&model.ProviderCredential{},
	))

	prev := model.DB
	model.DB = db
	t.Cleanup(func() { model.DB = prev })
}

// seedIdentity creates an org + project + key chain and returns the token.
func seedIdentity(t *testing.T, org *model.Organization, project *model.Project) string {
	t.Helper()
	require.NoError(t, model.DB.Create(org).Error)
	project.OrganizationID = org.ID
	require.NoError(t, model.DB.Create(project).Error)

	token := "sk-shinway-" + t.Name()
	require.NoError(t, model.DB.Create(&model.ApiKey{
		ID:        "key-" + t.Name(),
		ProjectID: project.ID,
		TokenHash: model.HashToken(token),
		Status:    model.ApiKeyStatusActive,
	}).Error)
	t.Cleanup(func() { model.InvalidateAuthCache(token) })
	return token
}

func runAuth(t *testing.T, header map[string]string) (*gin.Context, *httptest.ResponseRecorder) {
	t.Helper()
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/v1/chat/completions", nil)
	for k, v := range header {
		c.Request.Header.Set(k, v)
	}
	TokenAuth()(c)
	return c, w
}

func TestTokenAuthBearer(t *testing.T) {
	setupTestDB(t)
	token := seedIdentity(t,
		&model.Organization{ID: "org-1"},
		&model.Project{ID: "proj-1"},
	)

	c, w := runAuth(t, map[string]string{"Authorization": "Bearer " + token})
	assert.False(t, c.IsAborted())
	assert.Equal(t, http.StatusOK, w.Code)

	org := OrganizationFromContext(c)
	require.NotNil(t, org)
	assert.Equal(t, "org-1", org.ID)
	require.NotNil(t, ProjectFromContext(c))
	require.NotNil(t, ApiKeyFromContext(c))
}

func TestTokenAuthXAPIKeyHeader(t *testing.T) {
	setupTestDB(t)
	token := seedIdentity(t,
		&model.Organization{ID: "org-1"},
		&model.Project{ID: "proj-1"},
	)

	c, _ := runAuth(t, map[string]string{"x-api-key": token})
	assert.False(t, c.IsAborted())
	require.NotNil(t, OrganizationFromContext(c))
}

func TestTokenAuthRejectsMissingKey(t *testing.T) {
	setupTestDB(t)
	c, w := runAuth(t, nil)
	assert.True(t, c.IsAborted())
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "missing_api_key")
}

func TestTokenAuthRejectsUnknownKey(t *testing.T) {
	setupTestDB(t)
	c, w := runAuth(t, map[string]string{"Authorization": "Bearer sk-bogus"})
	assert.True(t, c.IsAborted())
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "invalid_api_key")
}

func TestTokenAuthRejectsInactiveKey(t *testing.T) {
	setupTestDB(t)
	token := seedIdentity(t,
		&model.Organization{ID: "org-1"},
		&model.Project{ID: "proj-1"},
	)
	require.NoError(t, model.DB.Model(&model.ApiKey{}).
		Where("project_id = ?", "proj-1").
		Update("status", model.ApiKeyStatusInactive).Error)
	model.InvalidateAuthCache(token)

	c, w := runAuth(t, map[string]string{"Authorization": "Bearer " + token})
	assert.True(t, c.IsAborted())
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "inactive_api_key")
}

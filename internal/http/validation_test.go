package http

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func chainRouter(handlers ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(errorTranslatorMiddleware(zap.NewNop()))
	r.POST("/probe", handlers...)
	return r
}

func postBody(r *gin.Engine, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/probe", bytes.NewReader([]byte(body)))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestBodyChainReturnsFullErrorSet(t *testing.T) {
	r := chainRouter(registerValidator(), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	rec := postBody(r, `{"email":"bad","password":"x","confirm_password":"x"}`)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rec.Code)
	}
	var resp struct {
		Errors map[string]string `json:"errors"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Errors) < 4 {
		t.Fatalf("expected errors for name, email, password and date_of_birth, got %v", resp.Errors)
	}
}

func TestBodyChainNormalizesBeforeHandler(t *testing.T) {
	var seen struct {
		Email       string `json:"email"`
		DateOfBirth string `json:"date_of_birth"`
	}
	r := chainRouter(registerValidator(), func(c *gin.Context) {
		if err := c.ShouldBindJSON(&seen); err != nil {
			c.Status(http.StatusInternalServerError)
			return
		}
		c.Status(http.StatusOK)
	})

	rec := postBody(r, `{"name":"A","email":"  A@X.Com ","password":"Passw0rd!","confirm_password":"Passw0rd!","date_of_birth":"1990-01-01"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	if seen.Email != "a@x.com" {
		t.Fatalf("expected normalized email, got %q", seen.Email)
	}
	if seen.DateOfBirth != "1990-01-01T00:00:00Z" {
		t.Fatalf("expected ISO8601 normalized date, got %q", seen.DateOfBirth)
	}
}

func TestBodyChainRejectsInvalidJSON(t *testing.T) {
	r := chainRouter(loginValidator(), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	rec := postBody(r, `{"email":`)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rec.Code)
	}
}

func TestPasswordMismatchShortCircuitsWith400(t *testing.T) {
	r := chainRouter(resetPasswordValidator(), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	rec := postBody(r, `{"password":"Passw0rd!","confirm_password":"Other1!"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestFilterBodyStripsUnknownKeys(t *testing.T) {
	var seen map[string]any
	r := chainRouter(filterBody("bio", "name"), func(c *gin.Context) {
		if err := c.ShouldBindJSON(&seen); err != nil {
			c.Status(http.StatusInternalServerError)
			return
		}
		c.Status(http.StatusOK)
	})

	rec := postBody(r, `{"bio":"hi","password":"sneaky","admin":true}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if _, ok := seen["password"]; ok {
		t.Fatalf("expected password stripped")
	}
	if _, ok := seen["admin"]; ok {
		t.Fatalf("expected admin stripped")
	}
	if seen["bio"] != "hi" {
		t.Fatalf("expected allowed key kept, got %v", seen)
	}
}

func TestUpdateMeChainSkipsAbsentFields(t *testing.T) {
	r := chainRouter(updateMeValidator(), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	rec := postBody(r, `{}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for empty patch, got %d", rec.Code)
	}

	rec = postBody(r, `{"username":"ab"}`)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for short username, got %d", rec.Code)
	}

	rec = postBody(r, `{"website":"not a url"}`)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for bad url, got %d", rec.Code)
	}
}

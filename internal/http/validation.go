package http

import (
	"bytes"
	"encoding/json"
	"io"
	"strings"
	"time"
	"unicode"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"shopcart-api/internal/service"
)

var validate = validator.New()

// checkFunc valida y normaliza el valor de un campo. Devuelve el valor
// normalizado y un mensaje de error ("" si pasa).
type checkFunc func(value string) (string, string)

type fieldRule struct {
	field    string
	required bool
	check    checkFunc
}

// crossCheck valida consistencia entre campos ya normalizados. Su error
// corta el pipeline con el status propio del error, fuera del set 422.
type crossCheck func(body map[string]any) error

// bodyChain es una cadena declarativa de validación sobre el body JSON:
// corre las reglas en orden, junta todos los errores de campo y, si hay
// alguno, responde 422 con el set completo sin ejecutar el handler.
// Si pasa, reescribe el body con los valores normalizados.
type bodyChain struct {
	rules []fieldRule
	cross []crossCheck
}

func (ch bodyChain) middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		body, ok := readBodyMap(c)
		if !ok {
			return
		}

		verrs := ValidationErrors{}
		for _, rule := range ch.rules {
			raw, present := body[rule.field]
			if !present || raw == nil {
				if rule.required {
					verrs[rule.field] = "is required"
				}
				continue
			}
			value, isString := raw.(string)
			if !isString {
				verrs[rule.field] = "must be a string"
				continue
			}
			if rule.check == nil {
				continue
			}
			normalized, msg := rule.check(value)
			if msg != "" {
				verrs[rule.field] = msg
				continue
			}
			body[rule.field] = normalized
		}

		if len(verrs) > 0 {
			_ = c.Error(verrs)
			c.Abort()
			return
		}

		for _, check := range ch.cross {
			if err := check(body); err != nil {
				_ = c.Error(err)
				c.Abort()
				return
			}
		}

		writeBodyMap(c, body)
		c.Next()
	}
}

// queryChain valida parámetros de query con las mismas reglas de campo.
type queryChain struct {
	rules []fieldRule
}

func (ch queryChain) middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		verrs := ValidationErrors{}
		for _, rule := range ch.rules {
			value := strings.TrimSpace(c.Query(rule.field))
			if value == "" {
				if rule.required {
					verrs[rule.field] = "is required"
				}
				continue
			}
			if rule.check == nil {
				continue
			}
			if _, msg := rule.check(value); msg != "" {
				verrs[rule.field] = msg
			}
		}
		if len(verrs) > 0 {
			_ = c.Error(verrs)
			c.Abort()
			return
		}
		c.Next()
	}
}

// filterBody descarta del body toda clave fuera de la lista permitida,
// antes de validar y de que algo llegue a persistencia.
func filterBody(allowed ...string) gin.HandlerFunc {
	allowedSet := make(map[string]struct{}, len(allowed))
	for _, key := range allowed {
		allowedSet[key] = struct{}{}
	}
	return func(c *gin.Context) {
		body, ok := readBodyMap(c)
		if !ok {
			return
		}
		for key := range body {
			if _, keep := allowedSet[key]; !keep {
				delete(body, key)
			}
		}
		writeBodyMap(c, body)
		c.Next()
	}
}

func readBodyMap(c *gin.Context) (map[string]any, bool) {
	raw, err := io.ReadAll(c.Request.Body)
	if err != nil {
		_ = c.Error(ValidationErrors{"body": "could not read body"})
		c.Abort()
		return nil, false
	}
	body := map[string]any{}
	if len(bytes.TrimSpace(raw)) > 0 {
		if err := json.Unmarshal(raw, &body); err != nil {
			_ = c.Error(ValidationErrors{"body": "must be valid json"})
			c.Abort()
			return nil, false
		}
	}
	return body, true
}

func writeBodyMap(c *gin.Context, body map[string]any) {
	buf, err := json.Marshal(body)
	if err != nil {
		buf = []byte("{}")
	}
	c.Request.Body = io.NopCloser(bytes.NewReader(buf))
	c.Request.ContentLength = int64(len(buf))
}

// Checks de campo.

func checkEmail(value string) (string, string) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	if err := validate.Var(normalized, "required,email"); err != nil {
		return "", "must be a valid email"
	}
	return normalized, ""
}

func checkPassword(value string) (string, string) {
	if len(value) < 6 || len(value) > 50 {
		return "", "must be between 6 and 50 characters"
	}
	return value, ""
}

func checkName(value string) (string, string) {
	trimmed := strings.TrimSpace(value)
	if len(trimmed) < 1 || len(trimmed) > 100 {
		return "", "must be between 1 and 100 characters"
	}
	return trimmed, ""
}

// checkDate acepta fechas ISO8601 (con o sin hora) y normaliza a RFC3339.
func checkDate(value string) (string, string) {
	trimmed := strings.TrimSpace(value)
	if ts, err := time.Parse(time.RFC3339, trimmed); err == nil {
		return ts.UTC().Format(time.RFC3339), ""
	}
	if ts, err := time.Parse("2006-01-02", trimmed); err == nil {
		return ts.UTC().Format(time.RFC3339), ""
	}
	return "", "must be an ISO8601 date"
}

func checkUsername(value string) (string, string) {
	trimmed := strings.TrimSpace(value)
	if len(trimmed) < 4 || len(trimmed) > 15 {
		return "", "must be between 4 and 15 characters"
	}
	for _, r := range trimmed {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' {
			return "", "may only contain letters, numbers and underscore"
		}
	}
	return trimmed, ""
}

func checkURL(value string) (string, string) {
	trimmed := strings.TrimSpace(value)
	if err := validate.Var(trimmed, "url"); err != nil {
		return "", "must be a valid url"
	}
	return trimmed, ""
}

func checkText(max int) checkFunc {
	return func(value string) (string, string) {
		trimmed := strings.TrimSpace(value)
		if len(trimmed) > max {
			return "", "is too long"
		}
		return trimmed, ""
	}
}

func checkPresent(value string) (string, string) {
	if strings.TrimSpace(value) == "" {
		return "", "is required"
	}
	return strings.TrimSpace(value), ""
}

func passwordConfirmed(passwordField, confirmField string) crossCheck {
	return func(body map[string]any) error {
		password, _ := body[passwordField].(string)
		confirm, _ := body[confirmField].(string)
		if password != confirm {
			return service.ErrPasswordMismatch
		}
		return nil
	}
}

// Cadenas por ruta.

func registerValidator() gin.HandlerFunc {
	return bodyChain{
		rules: []fieldRule{
			{field: "name", required: true, check: checkName},
			{field: "email", required: true, check: checkEmail},
			{field: "password", required: true, check: checkPassword},
			{field: "confirm_password", required: true, check: checkPresent},
			{field: "date_of_birth", required: true, check: checkDate},
		},
		cross: []crossCheck{passwordConfirmed("password", "confirm_password")},
	}.middleware()
}

func loginValidator() gin.HandlerFunc {
	return bodyChain{
		rules: []fieldRule{
			{field: "email", required: true, check: checkEmail},
			{field: "password", required: true, check: checkPresent},
		},
	}.middleware()
}

func refreshTokenValidator() gin.HandlerFunc {
	return bodyChain{
		rules: []fieldRule{
			{field: "refresh_token", required: true, check: checkPresent},
		},
	}.middleware()
}

func verifyEmailValidator() gin.HandlerFunc {
	return queryChain{
		rules: []fieldRule{
			{field: "email_verify_token", required: true},
		},
	}.middleware()
}

func forgotPasswordValidator() gin.HandlerFunc {
	return bodyChain{
		rules: []fieldRule{
			{field: "email", required: true, check: checkEmail},
		},
	}.middleware()
}

func forgotPasswordTokenValidator() gin.HandlerFunc {
	return bodyChain{
		rules: []fieldRule{
			{field: "forgot_password_token", required: true, check: checkPresent},
		},
	}.middleware()
}

func resetPasswordValidator() gin.HandlerFunc {
	return bodyChain{
		rules: []fieldRule{
			{field: "password", required: true, check: checkPassword},
			{field: "confirm_password", required: true, check: checkPresent},
		},
		cross: []crossCheck{passwordConfirmed("password", "confirm_password")},
	}.middleware()
}

func changePasswordValidator() gin.HandlerFunc {
	return bodyChain{
		rules: []fieldRule{
			{field: "old_password", required: true, check: checkPresent},
			{field: "password", required: true, check: checkPassword},
			{field: "confirm_password", required: true, check: checkPresent},
		},
		cross: []crossCheck{passwordConfirmed("password", "confirm_password")},
	}.middleware()
}

func updateMeValidator() gin.HandlerFunc {
	return bodyChain{
		rules: []fieldRule{
			{field: "name", check: checkName},
			{field: "date_of_birth", check: checkDate},
			{field: "bio", check: checkText(400)},
			{field: "location", check: checkText(200)},
			{field: "website", check: checkURL},
			{field: "username", check: checkUsername},
			{field: "avatar", check: checkText(400)},
			{field: "cover_photo", check: checkText(400)},
		},
	}.middleware()
}

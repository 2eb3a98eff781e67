package domain

import "time"

// User es el registro persistido de un usuario. Los campos sensibles
// (hash de password y tokens de un solo uso) nunca se serializan.
type User struct {
	ID                  string     `json:"id"`
	Name                string     `json:"name"`
	Email               string     `json:"email"`
	Username            string     `json:"username,omitempty"`
	DateOfBirth         *time.Time `json:"date_of_birth,omitempty"`
	PasswordHash        string     `json:"-"`
	EmailVerifyToken    string     `json:"-"`
	ForgotPasswordToken string     `json:"-"`
	VerifiedAt          *time.Time `json:"verified_at,omitempty"`
	Bio                 string     `json:"bio,omitempty"`
	Location            string     `json:"location,omitempty"`
	Website             string     `json:"website,omitempty"`
	Avatar              string     `json:"avatar,omitempty"`
	CoverPhoto          string     `json:"cover_photo,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

func (u User) Verified() bool {
	return u.VerifiedAt != nil
}

// ProfileUpdate agrupa los campos de perfil que el usuario puede modificar.
// Un puntero nil significa "sin cambio".
type ProfileUpdate struct {
	Name        *string
	DateOfBirth *time.Time
	Bio         *string
	Location    *string
	Website     *string
	Username    *string
	Avatar      *string
	CoverPhoto  *string
}

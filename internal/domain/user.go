package domain

// Profile is the signed-in identity extracted from the identity token
type Profile struct {
	Subject string `json:"sub"`
	Email   string `json:"email"`
	Name    string `json:"name,omitempty"`
	Picture string `json:"picture,omitempty"`
}

// SignInRequest carries the identity token and an optional storage bearer token
type SignInRequest struct {
	IDToken     string `json:"id_token" validate:"required"`
	AccessToken string `json:"access_token,omitempty"`
}

// AccessTokenUpdate replaces the cached storage bearer token
type AccessTokenUpdate struct {
	AccessToken string `json:"access_token" validate:"required"`
}

// SignInResult is returned after a successful sign-in
type SignInResult struct {
	Token     string  `json:"token"`
	ExpiresIn int64   `json:"expires_in"`
	Profile   Profile `json:"profile"`
}

package providers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/oauth2"
)

type githubUser struct {
	ID    int64  `json:"id"`
	Login string `json:"login"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

type githubEmail struct {
	Email    string `json:"email"`
	Primary  bool   `json:"primary"`
	Verified bool   `json:"verified"`
}

type googleUser struct {
	Sub           string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
}

// fetchUser reads the signed-in account from the provider's user API.
func (r *Registry) fetchUser(ctx context.Context, p *provider, cfg *oauth2.Config, tok *oauth2.Token) (*Identity, error) {
	client := cfg.Client(ctx, tok)

	if p.cfg.Kind == KindGoogle {
		var u googleUser
		if err := getJSON(ctx, client, p.userInfoURL, &u); err != nil {
			return nil, errors.Wrap(err, "[Registry.fetchUser] google userinfo")
		}
		if u.Sub == "" {
			return nil, errors.New("[Registry.fetchUser] google userinfo has no sub")
		}
		return &Identity{Subject: u.Sub, Email: u.Email, EmailVerified: u.EmailVerified, Name: u.Name}, nil
	}

	var u githubUser
	if err := getJSON(ctx, client, p.userInfoURL, &u); err != nil {
		return nil, errors.Wrap(err, "[Registry.fetchUser] github user")
	}
	if u.ID == 0 {
		return nil, errors.New("[Registry.fetchUser] github user has no id")
	}
	id := &Identity{Subject: strconv.FormatInt(u.ID, 10), Email: u.Email, Name: u.Name}
	if id.Name == "" {
		id.Name = u.Login
	}

	// The profile email is whatever the user made public and carries no
	// verification flag. Prefer the primary verified address.
	var emails []githubEmail
	if err := getJSON(ctx, client, strings.TrimSuffix(p.userInfoURL, "/")+"/emails", &emails); err != nil {
		r.log.Debug().Err(err).Msg("github emails unavailable")
		return id, nil
	}
	for _, e := range emails {
		if e.Primary && e.Verified {
			id.Email, id.EmailVerified = e.Email, true
			break
		}
	}
	return id, nil
}

func getJSON(ctx context.Context, client *http.Client, url string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return errors.Errorf("unexpected status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

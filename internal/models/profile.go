package models

import "strings"

// Profile field names in the users collection.
const (
	FieldUsername  = "username"
	FieldAvatarURL = "avatarUrl"
)

// Profile is a directory entry for one identity.
type Profile struct {
	ID        string
	Username  string
	AvatarURL string
}

// DisplayName falls back to the id when no username is set.
func (p Profile) DisplayName() string {
	if name := strings.TrimSpace(p.Username); name != "" {
		return name
	}
	return p.ID
}

// Fields returns the persisted profile record.
func (p Profile) Fields() map[string]any {
	fields := map[string]any{FieldUsername: p.Username}
	if p.AvatarURL != "" {
		fields[FieldAvatarURL] = p.AvatarURL
	}
	return fields
}

// Validate checks the profile before registration.
func (p Profile) Validate() error {
	validation := &ValidationErrors{}
	validation.Add("id", ValidateIdentity(p.ID))
	if strings.TrimSpace(p.Username) == "" {
		validation.AddMessage(FieldUsername, "username is required")
	}
	return validation.Err()
}

// ProfileFromFields decodes a users collection document.
func ProfileFromFields(id string, fields map[string]any) Profile {
	return Profile{
		ID:        id,
		Username:  StringField(fields, FieldUsername),
		AvatarURL: StringField(fields, FieldAvatarURL),
	}
}

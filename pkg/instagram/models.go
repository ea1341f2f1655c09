package instagram

import (
	"encoding/json"
	"strconv"
)

// TopSearchResponse is the body of the top-search endpoint
type TopSearchResponse struct {
	Hashtags []HashtagResult `json:"hashtags"`
	Users    []UserResult    `json:"users"`
	Status   string          `json:"status"`
}

// HashtagResult wraps one hashtag hit
type HashtagResult struct {
	Position int     `json:"position"`
	Hashtag  Hashtag `json:"hashtag"`
}

// Hashtag is a tag with its reported volume
type Hashtag struct {
	Name       string `json:"name"`
	ID         FlexID `json:"id"`
	MediaCount int    `json:"media_count"`
}

// UserResult wraps one user hit
type UserResult struct {
	Position int      `json:"position"`
	User     UserHint `json:"user"`
}

// UserHint is the abbreviated user object returned by search
type UserHint struct {
	Username string `json:"username"`
	FullName string `json:"full_name"`
}

// ProfileInfo is the subset of the embedded profile JSON the pipeline reads
type ProfileInfo struct {
	Username       string `json:"username"`
	FullName       string `json:"full_name"`
	Biography      string `json:"biography"`
	ExternalURL    string `json:"external_url"`
	PublicEmail    string `json:"public_email"`
	PublicPhone    string `json:"public_phone_number"`
	ContactPhone   string `json:"contact_phone_number"`
	CityName       string `json:"city_name"`
	Zip            string `json:"zip"`
	Address        string `json:"address_street"`
	BusinessEmail  string `json:"business_email"`
	BusinessPhone  string `json:"business_phone_number"`
	IsPrivate      bool   `json:"is_private"`
	EdgeFollowedBy struct {
		Count int `json:"count"`
	} `json:"edge_followed_by"`
	EdgeFollow struct {
		Count int `json:"count"`
	} `json:"edge_follow"`
}

// FlexID decodes ids that arrive either as strings or as numbers
type FlexID string

func (f *FlexID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = FlexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	if _, err := strconv.ParseInt(n.String(), 10, 64); err != nil {
		return err
	}
	*f = FlexID(n.String())
	return nil
}

package user

// PlaceholderName is rendered when a profile cannot be resolved.
const PlaceholderName = "User"

type Profile struct {
	ID        string `json:"userId"`
	Fullname  string `json:"fullname"`
	AvatarURL string `json:"urlavatar"`
}

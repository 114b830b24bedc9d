package models

import "cloud.google.com/go/civil"

// ExperienceInput is the owner-editable part of an experience.
type ExperienceInput struct {
	Title           string     `json:"title" validate:"required,max=200"`
	Description     string     `json:"description" validate:"required"`
	Languages       []string   `json:"language" validate:"omitempty,dive,required"`
	MinimumAge      int        `json:"minimumAge" validate:"gte=0"`
	Country         string     `json:"country" validate:"required"`
	City            string     `json:"city" validate:"required"`
	State           string     `json:"state"`
	Address         string     `json:"address"`
	FullAddress     string     `json:"fullAddress"`
	CriteriaOfGuest string     `json:"criteriaOfGuest"`
	Longitude       float64    `json:"longitude" validate:"longitude"`
	Latitude        float64    `json:"latitude" validate:"latitude"`
	Perks           Perks      `json:"perks"`
	Notice          string     `json:"notice"`
	KidsAllowed     bool       `json:"kidsAllowed"`
	PetsAllowed     bool       `json:"petsAllowed"`
	Tags            []string   `json:"tags" validate:"max=20"`
	Cancellation1   bool       `json:"cancellation1"`
	Cancellation2   bool       `json:"cancellation2"`
	StartTime       string     `json:"startTime" validate:"required"`
	EndTime         string     `json:"endTime" validate:"required"`
	StartDate       civil.Date `json:"startDate"`
	EndDate         civil.Date `json:"endDate"`
	MaxGuest        int        `json:"maxGuest" validate:"gt=0"`
	Price           float64    `json:"price" validate:"gte=0"`
	Currency        string     `json:"currency" validate:"required,len=3"`
}

func (in ExperienceInput) Window() Window {
	return Window{
		StartDate: in.StartDate,
		EndDate:   in.EndDate,
		StartTime: in.StartTime,
		EndTime:   in.EndTime,
		MaxGuest:  in.MaxGuest,
		Price:     in.Price,
		Currency:  in.Currency,
	}
}

// ApplyTo copies the descriptive fields onto exp. Schedule fields are left alone.
func (in ExperienceInput) ApplyTo(exp *Experience) {
	exp.Title = in.Title
	exp.Description = in.Description
	exp.Languages = in.Languages
	exp.MinimumAge = in.MinimumAge
	exp.Country = in.Country
	exp.City = in.City
	exp.State = in.State
	exp.Address = in.Address
	exp.FullAddress = in.FullAddress
	exp.CriteriaOfGuest = in.CriteriaOfGuest
	exp.Longitude = in.Longitude
	exp.Latitude = in.Latitude
	exp.Perks = in.Perks
	exp.Notice = in.Notice
	exp.KidsAllowed = in.KidsAllowed
	exp.PetsAllowed = in.PetsAllowed
	exp.Tags = NormalizeTags(in.Tags)
	exp.Cancellation1 = in.Cancellation1
	exp.Cancellation2 = in.Cancellation2
}

// WindowRequest redefines the availability of an experience.
type WindowRequest struct {
	StartDate civil.Date `json:"startDate"`
	EndDate   civil.Date `json:"endDate"`
	StartTime string     `json:"startTime" validate:"required"`
	EndTime   string     `json:"endTime" validate:"required"`
	MaxGuest  int        `json:"maxGuest" validate:"gt=0"`
	Price     float64    `json:"price" validate:"gte=0"`
	Currency  string     `json:"currency" validate:"required,len=3"`
}

func (r WindowRequest) Window() Window {
	return Window(r)
}

type CommentRequest struct {
	ExperienceID string `json:"experienceId" validate:"required"`
	Description  string `json:"description" validate:"required"`
}

type SignupRequest struct {
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required,min=8,max=128"`
	Password2 string `json:"password2" validate:"required,eqfield=Password"`
	FirstName string `json:"firstName" validate:"max=100"`
	LastName  string `json:"lastName" validate:"max=100"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// ProfileUpdate holds the user-editable profile fields.
type ProfileUpdate struct {
	FirstName   string `json:"firstName" validate:"max=100"`
	LastName    string `json:"lastName" validate:"max=100"`
	PhoneNumber string `json:"phoneNumber" validate:"max=32"`
	Country     string `json:"country"`
	City        string `json:"city"`
	Province    string `json:"province"`
	Zip         string `json:"zip"`
	Street      string `json:"street"`
	Description string `json:"description" validate:"max=1000"`
}

func (p ProfileUpdate) ApplyTo(u *User) {
	u.FirstName = p.FirstName
	u.LastName = p.LastName
	u.PhoneNumber = p.PhoneNumber
	u.Country = p.Country
	u.City = p.City
	u.Province = p.Province
	u.Zip = p.Zip
	u.Street = p.Street
	u.Description = p.Description
}

package onboarding

import "time"

type Address struct {
	Street     string `json:"street"`
	City       string `json:"city"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
}

type MedicalInfo struct {
	BloodType  string   `json:"blood_type"`
	HeightCm   float64  `json:"height_cm"`
	WeightKg   float64  `json:"weight_kg"`
	Allergies  []string `json:"allergies,omitempty"`
	Conditions []string `json:"conditions,omitempty"`
}

type Insurance struct {
	Provider     string `json:"provider"`
	PolicyNumber string `json:"policy_number"`
	GroupNumber  string `json:"group_number,omitempty"`
}

type EmergencyContact struct {
	Name         string `json:"name"`
	Relationship string `json:"relationship"`
	Phone        string `json:"phone"`
}

// PatientProfile is filled in piece by piece during onboarding. A nil section
// has not been provided yet.
type PatientProfile struct {
	FullName         string            `json:"full_name"`
	DateOfBirth      time.Time         `json:"date_of_birth"`
	AcceptedTerms    bool              `json:"accepted_terms"`
	Address          *Address          `json:"address,omitempty"`
	MedicalInfo      *MedicalInfo      `json:"medical_info,omitempty"`
	Insurance        *Insurance        `json:"insurance,omitempty"`
	EmergencyContact *EmergencyContact `json:"emergency_contact,omitempty"`
}

func (p *PatientProfile) Clone() *PatientProfile {
	if p == nil {
		return nil
	}
	c := *p
	if p.Address != nil {
		a := *p.Address
		c.Address = &a
	}
	if p.MedicalInfo != nil {
		m := *p.MedicalInfo
		m.Allergies = append([]string(nil), p.MedicalInfo.Allergies...)
		m.Conditions = append([]string(nil), p.MedicalInfo.Conditions...)
		c.MedicalInfo = &m
	}
	if p.Insurance != nil {
		i := *p.Insurance
		c.Insurance = &i
	}
	if p.EmergencyContact != nil {
		e := *p.EmergencyContact
		c.EmergencyContact = &e
	}
	return &c
}

type License struct {
	Number           string `json:"number"`
	IssuingAuthority string `json:"issuing_authority"`
	Country          string `json:"country"`
}

type Education struct {
	Degree         string `json:"degree"`
	Institution    string `json:"institution"`
	GraduationYear int    `json:"graduation_year"`
}

type Practice struct {
	ClinicName                string   `json:"clinic_name"`
	Address                   string   `json:"address"`
	Specialties               []string `json:"specialties"`
	YearsExperience           int      `json:"years_experience"`
	ConsultationFeeMinorUnits int64    `json:"consultation_fee_minor_units"`
}

type DoctorProfile struct {
	FullName      string      `json:"full_name"`
	AcceptedTerms bool        `json:"accepted_terms"`
	License       *License    `json:"license,omitempty"`
	Bio           string      `json:"bio"`
	Education     []Education `json:"education,omitempty"`
	Practice      *Practice   `json:"practice,omitempty"`
}

func (p *DoctorProfile) Clone() *DoctorProfile {
	if p == nil {
		return nil
	}
	c := *p
	if p.License != nil {
		l := *p.License
		c.License = &l
	}
	c.Education = append([]Education(nil), p.Education...)
	if p.Practice != nil {
		pr := *p.Practice
		pr.Specialties = append([]string(nil), p.Practice.Specialties...)
		c.Practice = &pr
	}
	return &c
}

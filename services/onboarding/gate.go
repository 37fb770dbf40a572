package onboarding

func patientAddress(p *PatientProfile) *Address          { return p.Address }
func patientMedical(p *PatientProfile) *MedicalInfo      { return p.MedicalInfo }
func patientInsurance(p *PatientProfile) *Insurance      { return p.Insurance }
func patientContact(p *PatientProfile) *EmergencyContact { return p.EmergencyContact }

// PatientRules is the checklist a patient profile must pass before the main
// flow opens.
var PatientRules = []Rule[PatientProfile]{
	field("full_name", func(p *PatientProfile) Result { return notBlank(p.FullName) }),
	field("date_of_birth", func(p *PatientProfile) Result {
		if p.DateOfBirth.IsZero() {
			return Invalid("is required")
		}
		return Valid()
	}),
	field("accepted_terms", func(p *PatientProfile) Result {
		if !p.AcceptedTerms {
			return Invalid("terms must be accepted")
		}
		return Valid()
	}),

	nested("address", "street", patientAddress, func(a *Address) Result { return notBlank(a.Street) }),
	nested("address", "city", patientAddress, func(a *Address) Result { return notBlank(a.City) }),
	nested("address", "postal_code", patientAddress, func(a *Address) Result { return notBlank(a.PostalCode) }),
	nested("address", "country", patientAddress, func(a *Address) Result { return notBlank(a.Country) }),

	nested("medical_info", "blood_type", patientMedical, func(m *MedicalInfo) Result { return notBlank(m.BloodType) }),
	nested("medical_info", "height_cm", patientMedical, func(m *MedicalInfo) Result { return positive(m.HeightCm) }),
	nested("medical_info", "weight_kg", patientMedical, func(m *MedicalInfo) Result { return positive(m.WeightKg) }),

	nested("insurance", "provider", patientInsurance, func(i *Insurance) Result { return notBlank(i.Provider) }),
	nested("insurance", "policy_number", patientInsurance, func(i *Insurance) Result { return notBlank(i.PolicyNumber) }),

	nested("emergency_contact", "name", patientContact, func(e *EmergencyContact) Result { return notBlank(e.Name) }),
	nested("emergency_contact", "relationship", patientContact, func(e *EmergencyContact) Result { return notBlank(e.Relationship) }),
	nested("emergency_contact", "phone", patientContact, func(e *EmergencyContact) Result { return notBlank(e.Phone) }),
}

func doctorLicense(p *DoctorProfile) *License   { return p.License }
func doctorPractice(p *DoctorProfile) *Practice { return p.Practice }

func completeEducation(e Education) bool {
	return notBlank(e.Degree).OK() && notBlank(e.Institution).OK() && e.GraduationYear > 0
}

var DoctorRules = []Rule[DoctorProfile]{
	field("full_name", func(p *DoctorProfile) Result { return notBlank(p.FullName) }),
	field("accepted_terms", func(p *DoctorProfile) Result {
		if !p.AcceptedTerms {
			return Invalid("terms must be accepted")
		}
		return Valid()
	}),

	nested("license", "number", doctorLicense, func(l *License) Result { return notBlank(l.Number) }),
	nested("license", "issuing_authority", doctorLicense, func(l *License) Result { return notBlank(l.IssuingAuthority) }),
	nested("license", "country", doctorLicense, func(l *License) Result { return notBlank(l.Country) }),

	field("bio", func(p *DoctorProfile) Result { return notBlank(p.Bio) }),

	// incomplete entries are drafts and do not count against the profile
	field("education", func(p *DoctorProfile) Result {
		for _, e := range p.Education {
			if completeEducation(e) {
				return Valid()
			}
		}
		return Invalid("at least one complete education entry is required")
	}),

	nested("practice", "clinic_name", doctorPractice, func(pr *Practice) Result { return notBlank(pr.ClinicName) }),
	nested("practice", "address", doctorPractice, func(pr *Practice) Result { return notBlank(pr.Address) }),
	nested("practice", "specialties", doctorPractice, func(pr *Practice) Result {
		for _, s := range pr.Specialties {
			if notBlank(s).OK() {
				return Valid()
			}
		}
		return Invalid("at least one specialty is required")
	}),
	nested("practice", "years_experience", doctorPractice, func(pr *Practice) Result { return nonNegative(pr.YearsExperience) }),
	nested("practice", "consultation_fee_minor_units", doctorPractice, func(pr *Practice) Result {
		return positive(pr.ConsultationFeeMinorUnits)
	}),
}

func ValidatePatient(p *PatientProfile) Violations {
	return Validate(PatientRules, p)
}

func ValidateDoctor(p *DoctorProfile) Violations {
	return Validate(DoctorRules, p)
}

// IsPatientComplete is the onboarding gate for patients.
func IsPatientComplete(p *PatientProfile) bool {
	return len(ValidatePatient(p)) == 0
}

// IsDoctorComplete is the onboarding gate for doctors.
func IsDoctorComplete(p *DoctorProfile) bool {
	return len(ValidateDoctor(p)) == 0
}

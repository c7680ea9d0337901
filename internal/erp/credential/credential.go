// Package credential loads and saves the on-disk ERP credential file
// (typically erpcreds.json).
package credential

import (
	"encoding/json"
	"os"

	"github.com/metakgp/iitkgp-erp-login/internal/pkg/validator"
)

// Credentials holds the account's login inputs. Every field is optional in
// the file; interactive callers backfill missing fields before the login
// flow first needs them.
type Credentials struct {
	// RollNumber is the student roll number used as the portal user id.
	RollNumber string `json:"roll_number,omitempty" validate:"omitempty,alphanum"`
	// Password is the ERP password.
	Password string `json:"password,omitempty"`
	// AnswerMap maps security question text to its answer.
	AnswerMap map[string]string `json:"answer_map,omitempty" validate:"omitempty,dive,required"`
}

// AnswerFor resolves the stored answer for a security question.
func (c *Credentials) AnswerFor(question string) (string, bool) {
	if c == nil || c.AnswerMap == nil {
		return "", false
	}
	answer, ok := c.AnswerMap[question]
	return answer, ok
}

// Load reads and validates a credential file.
func Load(path string, v validator.Validator) (*Credentials, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var creds Credentials
	if err := json.Unmarshal(data, &creds); err != nil {
		return nil, err
	}

	if v != nil {
		if err := v.Validate(creds); err != nil {
			return nil, err
		}
	}

	return &creds, nil
}

// Save writes the credential file with owner-only permissions.
func (c *Credentials) Save(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, append(data, '\n'), 0o600)
}

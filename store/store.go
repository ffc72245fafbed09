package store

import (
	"encoding/json"
	"os"
	"sync"

	"CODStatusChecker/errorhandler"
	"CODStatusChecker/logger"
	"CODStatusChecker/models"
)

const (
	AccountsFileName    = "accounts.json"
	CredentialsFileName = "login_credentials.json"
)

// Store owns the durable account and credential collections. All mutation
// goes through its mutex, so concurrent jobs never interleave writes and two
// saves can never overlap mid-file.
type Store struct {
	mu sync.Mutex

	accountsPath    string
	credentialsPath string

	accounts    []*models.Account
	credentials []models.LoginCredentials
}

func New(accountsPath, credentialsPath string) *Store {
	if accountsPath == "" {
		accountsPath = AccountsFileName
	}
	if credentialsPath == "" {
		credentialsPath = CredentialsFileName
	}
	return &Store{
		accountsPath:    accountsPath,
		credentialsPath: credentialsPath,
	}
}

// Load reads both files and merges them. The credentials file is the source
// of truth for email/password pairs; the accounts file supplies previously
// learned profile fields for matching emails. Credential-only emails become
// accounts with empty profile fields. Corrupt files degrade to an empty
// collection with a loud warning rather than failing the process.
func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var fileAccounts []*models.Account
	if data, err := os.ReadFile(s.accountsPath); err != nil {
		if os.IsNotExist(err) {
			logger.Log.Warnf("Accounts file %s not found", s.accountsPath)
		} else {
			return errorhandler.NewStoreError(err, "read accounts file")
		}
	} else if err := json.Unmarshal(data, &fileAccounts); err != nil {
		logger.Log.WithError(err).Warnf("Error parsing %s, starting with an empty account collection", s.accountsPath)
		fileAccounts = nil
	}

	var fileCredentials []models.LoginCredentials
	if data, err := os.ReadFile(s.credentialsPath); err != nil {
		if os.IsNotExist(err) {
			logger.Log.Warnf("Login credentials file %s not found", s.credentialsPath)
		} else {
			return errorhandler.NewStoreError(err, "read credentials file")
		}
	} else if err := json.Unmarshal(data, &fileCredentials); err != nil {
		logger.Log.WithError(err).Warnf("Error parsing %s, starting with an empty credential collection", s.credentialsPath)
		fileCredentials = nil
	}

	s.accounts = fileAccounts
	s.credentials = fileCredentials

	for _, cred := range s.credentials {
		acct := s.findLocked(cred.Email)
		if acct == nil {
			acct = &models.Account{Email: cred.Email}
			s.accounts = append(s.accounts, acct)
		}
		acct.Password = cred.Password
	}

	logger.Log.Infof("Loaded %d accounts and %d login credentials", len(s.accounts), len(s.credentials))
	return nil
}

// Save writes both collections back in full. Last writer wins at file
// granularity.
func (s *Store) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked()
}

func (s *Store) saveLocked() error {
	accountsData, err := json.MarshalIndent(s.accounts, "", "  ")
	if err != nil {
		return errorhandler.NewStoreError(err, "encode accounts")
	}
	if err := os.WriteFile(s.accountsPath, accountsData, 0644); err != nil {
		return errorhandler.NewStoreError(err, "write accounts file")
	}

	credData, err := json.MarshalIndent(s.credentials, "", "  ")
	if err != nil {
		return errorhandler.NewStoreError(err, "encode credentials")
	}
	if err := os.WriteFile(s.credentialsPath, credData, 0644); err != nil {
		return errorhandler.NewStoreError(err, "write credentials file")
	}

	return nil
}

func (s *Store) findLocked(email string) *models.Account {
	for _, acct := range s.accounts {
		if acct.Email == email {
			return acct
		}
	}
	return nil
}

// Get returns a copy of the account for the given email.
func (s *Store) Get(email string) (models.Account, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if acct := s.findLocked(email); acct != nil {
		return *acct, true
	}
	return models.Account{}, false
}

// Accounts returns a snapshot of the collection in stored order.
func (s *Store) Accounts() []models.Account {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.Account, 0, len(s.accounts))
	for _, acct := range s.accounts {
		out = append(out, *acct)
	}
	return out
}

// Credentials returns a snapshot of the credential collection.
func (s *Store) Credentials() []models.LoginCredentials {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.LoginCredentials, len(s.credentials))
	copy(out, s.credentials)
	return out
}

// Upsert applies update to the account with the given email, creating the
// record first when absent.
func (s *Store) Upsert(email string, update func(*models.Account)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	acct := s.findLocked(email)
	if acct == nil {
		acct = &models.Account{Email: email}
		s.accounts = append(s.accounts, acct)
	}
	update(acct)
}

// UpsertCredential records an email/password pair, keeping any existing
// account's password in sync.
func (s *Store) UpsertCredential(email, password string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	found := false
	for i := range s.credentials {
		if s.credentials[i].Email == email {
			s.credentials[i].Password = password
			found = true
			break
		}
	}
	if !found {
		s.credentials = append(s.credentials, models.LoginCredentials{Email: email, Password: password})
	}

	if acct := s.findLocked(email); acct != nil {
		acct.Password = password
	}
}

// Delete removes the account and its credential. Accounts are only ever
// deleted through this explicit call.
func (s *Store) Delete(email string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	deleted := false
	for i, acct := range s.accounts {
		if acct.Email == email {
			s.accounts = append(s.accounts[:i], s.accounts[i+1:]...)
			deleted = true
			break
		}
	}
	for i := range s.credentials {
		if s.credentials[i].Email == email {
			s.credentials = append(s.credentials[:i], s.credentials[i+1:]...)
			break
		}
	}
	return deleted
}

// ClearCookie blanks the stored cookie after a failed validation probe.
func (s *Store) ClearCookie(email string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if acct := s.findLocked(email); acct != nil {
		acct.SSOCookie = ""
	}
}

// ImportCredentials merges email/password pairs from an external JSON file
// into both collections, creating accounts for new emails.
func (s *Store) ImportCredentials(path string) (updated, added int, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, 0, errorhandler.NewStoreError(err, "read credentials import file")
	}

	var creds []models.LoginCredentials
	if err := json.Unmarshal(data, &creds); err != nil {
		return 0, 0, errorhandler.NewStoreError(err, "parse credentials import file")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, cred := range creds {
		if cred.Email == "" || cred.Password == "" {
			continue
		}

		acct := s.findLocked(cred.Email)
		if acct != nil {
			acct.Password = cred.Password
			updated++
		} else {
			s.accounts = append(s.accounts, &models.Account{Email: cred.Email, Password: cred.Password})
			added++
		}

		found := false
		for i := range s.credentials {
			if s.credentials[i].Email == cred.Email {
				s.credentials[i].Password = cred.Password
				found = true
				break
			}
		}
		if !found {
			s.credentials = append(s.credentials, cred)
		}
	}

	if err := s.saveLocked(); err != nil {
		return updated, added, err
	}

	return updated, added, nil
}

// Len reports the number of accounts.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.accounts)
}

// Package domain defines the persistence models for wallet users, generated
// projects, their files and conversation history, cached completions, and
// mint records. These types are mapped with GORM and form the core data layer
// of the project-generation backend.
package domain

import (
	"strings"
	"time"

	"gorm.io/datatypes"
)

// Conversation roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// File kinds.
const (
	KindFile   = "file"
	KindFolder = "folder"
)

// Container lifecycle states stored on Project.
const (
	ContainerRunning  = "running"
	ContainerStopped  = "stopped"
	ContainerNotFound = "container_not_found"
)

// User is a wallet identity. The Stellar public key is the only credential;
// it is validated for format, not cryptographically.
//
// Fields:
//   - ID: UUID primary key (char(36)).
//   - PublicKey: Stellar account key ("G..."), unique.
//   - OpenAIAPIKey: optional per-user completion API key; never serialized.
type User struct {
	ID           string    `json:"id"         gorm:"type:char(36);primaryKey"`
	PublicKey    string    `json:"public_key" gorm:"type:varchar(56);not null;uniqueIndex:ux_users_public_key"`
	OpenAIAPIKey *string   `json:"-"          gorm:"column:openai_api_key;type:text"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// TableName returns the database table name for User.
func (User) TableName() string { return "users" }

// HasOpenAIKey reports whether the user stored their own completion key.
func (u User) HasOpenAIKey() bool {
	return u.OpenAIAPIKey != nil && strings.TrimSpace(*u.OpenAIAPIKey) != ""
}

// Project is a generated software project owned by a user. The container
// fields are populated while a deployment is running.
type Project struct {
	ID              string    `json:"id"                         gorm:"type:char(36);primaryKey"`
	UserID          string    `json:"user_id"                    gorm:"type:char(36);not null;index:idx_user_projects,priority:1"`
	Name            string    `json:"name"                       gorm:"type:varchar(200);not null"`
	Description     string    `json:"description"                gorm:"type:text;not null;default:''"`
	ContainerID     *string   `json:"container_id,omitempty"     gorm:"type:varchar(128)"`
	ContainerPort   *int      `json:"container_port,omitempty"`
	ContainerURL    *string   `json:"container_url,omitempty"    gorm:"type:varchar(255)"`
	ContainerStatus *string   `json:"container_status,omitempty" gorm:"type:varchar(32)"`
	CreatedAt       time.Time `json:"created_at"                 gorm:"index:idx_user_projects,priority:2"`
	UpdatedAt       time.Time `json:"updated_at"`

	User User `json:"-" gorm:"foreignKey:UserID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Project.
func (Project) TableName() string { return "projects" }

// Deployed reports whether the project currently tracks a container.
func (p Project) Deployed() bool { return p.ContainerID != nil && *p.ContainerID != "" }

// ProjectFile is one generated file or folder. A path maps to at most one row
// per project (ux_project_path); a trailing slash denotes a folder whose
// content is always empty.
type ProjectFile struct {
	ID        string    `json:"id"         gorm:"type:char(36);primaryKey"`
	ProjectID string    `json:"project_id" gorm:"type:char(36);not null;uniqueIndex:ux_project_path,priority:1"`
	Path      string    `json:"path"       gorm:"type:varchar(512);not null;uniqueIndex:ux_project_path,priority:2"`
	Content   string    `json:"content"    gorm:"type:text;not null;default:''"`
	Kind      string    `json:"type"       gorm:"column:kind;type:varchar(16);not null;default:'file';check:kind IN ('file','folder')"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Project Project `json:"-" gorm:"foreignKey:ProjectID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for ProjectFile.
func (ProjectFile) TableName() string { return "files" }

// IsFolderPath reports whether path uses the trailing-slash folder convention.
func IsFolderPath(path string) bool { return strings.HasSuffix(path, "/") }

// ConversationMessage is an append-only history entry. Assistant messages
// that ask a clarifying question carry the probed field in ClarifyField.
type ConversationMessage struct {
	ID           string    `json:"id"                      gorm:"type:char(36);primaryKey"`
	ProjectID    string    `json:"project_id"              gorm:"type:char(36);not null;index:idx_project_conversation,priority:1"`
	Role         string    `json:"role"                    gorm:"type:varchar(16);not null;check:role IN ('user','assistant')"`
	Content      string    `json:"content"                 gorm:"type:text;not null"`
	ClarifyField *string   `json:"clarify_field,omitempty" gorm:"type:varchar(16)"`
	CreatedAt    time.Time `json:"created_at"              gorm:"index:idx_project_conversation,priority:2"`

	Project Project `json:"-" gorm:"foreignKey:ProjectID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for ConversationMessage.
func (ConversationMessage) TableName() string { return "conversations" }

// CachedFile is the serialized form of a generated file kept with a cached
// completion.
type CachedFile struct {
	Path    string `json:"path"`
	Content string `json:"content"`
	Kind    string `json:"type"`
}

// CachedCompletion memoizes a completion by the fingerprint of its exact
// inputs. Rows are an accelerator only; losing one forces a fresh model call.
type CachedCompletion struct {
	Fingerprint string         `json:"fingerprint" gorm:"type:char(64);primaryKey"`
	ProjectID   string         `json:"project_id"  gorm:"type:char(36);not null;index"`
	Response    string         `json:"response"    gorm:"type:text;not null"`
	Files       datatypes.JSON `json:"files"       gorm:"type:text;not null;default:'[]'"` // []CachedFile
	CreatedAt   time.Time      `json:"created_at"`

	Project Project `json:"-" gorm:"foreignKey:ProjectID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for CachedCompletion.
func (CachedCompletion) TableName() string { return "response_cache" }

// MintRecord tracks the NFT minted for a project export. There is at most one
// record per project; re-minting overwrites it.
type MintRecord struct {
	ID             string    `json:"id"              gorm:"type:char(36);primaryKey"`
	ProjectID      string    `json:"project_id"      gorm:"type:char(36);not null;uniqueIndex:ux_mint_project"`
	UserID         string    `json:"user_id"         gorm:"type:char(36);not null;index"`
	StellarAddress string    `json:"stellar_address" gorm:"type:varchar(56);not null"`
	TokenID        string    `json:"token_id"        gorm:"type:varchar(128);not null"`
	IPFSCID        string    `json:"ipfs_cid"        gorm:"column:ipfs_cid;type:varchar(128);not null"`
	ContractID     string    `json:"contract_id"     gorm:"type:varchar(64);not null;default:''"`
	TxHash         string    `json:"tx_hash"         gorm:"type:varchar(64);not null;default:''"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"      gorm:"index"`

	Project Project `json:"-" gorm:"foreignKey:ProjectID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for MintRecord.
func (MintRecord) TableName() string { return "nft_mints" }

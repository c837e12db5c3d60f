// Package dbtest opens throwaway SQLite databases migrated with every model,
// plus fixtures shared by repository and service tests.
package dbtest

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/angelmondragon/reviewhub-backend/pkg/db"
	"github.com/angelmondragon/reviewhub-backend/pkg/db/models"
	"github.com/angelmondragon/reviewhub-backend/pkg/enums"
)

// Open returns a client over a private in-memory database.
func Open(t testing.TB) *db.Client {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_busy_timeout=5000", uuid.NewString())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		SkipDefaultTransaction: true,
		NowFunc:                db.UTCNow,
		Logger:                 gormlogger.Discard,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := conn.AutoMigrate(models.All()...); err != nil {
		t.Fatalf("migrate sqlite: %v", err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db.NewFromConn(conn)
}

func MustCreateUser(t testing.TB, conn *gorm.DB, name string) *models.User {
	t.Helper()
	user := &models.User{
		Email:        fmt.Sprintf("%s_%s@example.com", name, uuid.NewString()[:8]),
		PasswordHash: "hash",
		Name:         name,
		IsActive:     true,
	}
	if err := conn.Create(user).Error; err != nil {
		t.Fatalf("create user: %v", err)
	}
	return user
}

// MustCreateTeam creates a team with owner as its owner member.
func MustCreateTeam(t testing.TB, conn *gorm.DB, owner uuid.UUID) *models.Team {
	t.Helper()
	team := &models.Team{Name: "Review Team", CreatedBy: owner}
	if err := conn.Create(team).Error; err != nil {
		t.Fatalf("create team: %v", err)
	}
	MustAddMember(t, conn, team.ID, owner, enums.MemberRoleOwner)
	return team
}

func MustAddMember(t testing.TB, conn *gorm.DB, teamID, userID uuid.UUID, role enums.MemberRole) *models.TeamMembership {
	t.Helper()
	m := &models.TeamMembership{TeamID: teamID, UserID: userID, Role: role}
	if err := conn.Create(m).Error; err != nil {
		t.Fatalf("create membership: %v", err)
	}
	return m
}

func MustCreateProject(t testing.TB, conn *gorm.DB, teamID, ownerID uuid.UUID) *models.Project {
	t.Helper()
	project := &models.Project{TeamID: teamID, OwnerID: ownerID, Name: "Spring Campaign"}
	if err := conn.Create(project).Error; err != nil {
		t.Fatalf("create project: %v", err)
	}
	return project
}

func MustCreateAsset(t testing.TB, conn *gorm.DB, projectID, createdBy uuid.UUID, media enums.MediaType) *models.Asset {
	t.Helper()
	asset := &models.Asset{ProjectID: projectID, Title: "Hero Cut", MediaType: media, CreatedBy: createdBy}
	if err := conn.Create(asset).Error; err != nil {
		t.Fatalf("create asset: %v", err)
	}
	return asset
}

func MustCreateVersion(t testing.TB, conn *gorm.DB, asset *models.Asset, fileURL string, uploadedBy uuid.UUID) *models.AssetVersion {
	t.Helper()
	asset.VersionCounter++
	version := &models.AssetVersion{
		AssetID:       asset.ID,
		VersionNumber: asset.VersionCounter,
		FileURL:       fileURL,
		UploadedBy:    uploadedBy,
	}
	if err := conn.Create(version).Error; err != nil {
		t.Fatalf("create version: %v", err)
	}
	if err := conn.Model(asset).Updates(map[string]any{"file_url": fileURL, "version_counter": asset.VersionCounter}).Error; err != nil {
		t.Fatalf("update asset pointer: %v", err)
	}
	asset.FileURL = fileURL
	return version
}

// Fixture is the common team/project/asset graph most tests start from.
type Fixture struct {
	Owner   *models.User
	Team    *models.Team
	Project *models.Project
	Asset   *models.Asset
}

func MustSeed(t testing.TB, conn *gorm.DB) Fixture {
	t.Helper()
	owner := MustCreateUser(t, conn, "owner")
	team := MustCreateTeam(t, conn, owner.ID)
	project := MustCreateProject(t, conn, team.ID, owner.ID)
	asset := MustCreateAsset(t, conn, project.ID, owner.ID, enums.MediaTypeVideo)
	return Fixture{Owner: owner, Team: team, Project: project, Asset: asset}
}

// MustCreateInvite issues a review link on asset. A nil expiry never expires.
func MustCreateInvite(t testing.TB, conn *gorm.DB, assetID, createdBy uuid.UUID, permission enums.SharePermission, expiresAt *time.Time) *models.ReviewInvite {
	t.Helper()
	invite := &models.ReviewInvite{
		AssetID:    assetID,
		Token:      "tok_" + uuid.NewString(),
		Permission: permission,
		ExpiresAt:  expiresAt,
		CreatedBy:  createdBy,
	}
	if err := conn.Create(invite).Error; err != nil {
		t.Fatalf("create invite: %v", err)
	}
	return invite
}

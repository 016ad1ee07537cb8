package repositories

import "github.com/vsinha/prodplan/pkg/domain/entities"

// BOMRepository provides access to BOM revisions and their node arenas
type BOMRepository interface {
	GetModels() ([]string, error)
	GetRevisions(modelRef string) ([]entities.BOMRevision, error)

	// GetActiveRevision returns the single active revision of a model
	GetActiveRevision(modelRef string) (*entities.BOMRevision, error)

	// GetNodes returns the flat node arena of a revision, ordered by node id
	GetNodes(revisionID string) ([]entities.BOMNode, error)

	// LoadRevision stores a revision with its nodes. Loading an active
	// revision deactivates any other active revision of the same model.
	LoadRevision(revision entities.BOMRevision, nodes []entities.BOMNode) error
}

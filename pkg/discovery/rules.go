package discovery

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/soundprediction/consolidato/pkg/types"
)

// Rule maps a pair of entity types observed together in one source to a
// relationship type. Directional rules read entity1 -> entity2 in the order
// the types are declared.
type Rule struct {
	EntityTypes  [2]types.EntityType    `yaml:"entity_types"`
	Relationship types.RelationshipType `yaml:"relationship"`
}

type ruleFile struct {
	Rules []Rule `yaml:"rules"`
}

// RuleTable resolves co-occurrence pairs to relationship types.
type RuleTable struct {
	rules map[[2]types.EntityType]types.RelationshipType
}

// DefaultRules returns the compiled-in co-occurrence rule table.
func DefaultRules() *RuleTable {
	t := &RuleTable{rules: make(map[[2]types.EntityType]types.RelationshipType)}
	for _, r := range []Rule{
		{EntityTypes: [2]types.EntityType{types.EntityTypeRole, types.EntityTypeRole}, Relationship: types.RelCoordinatesWith},
		{EntityTypes: [2]types.EntityType{types.EntityTypeTeam, types.EntityTypeTeam}, Relationship: types.RelCoordinatesWith},
		{EntityTypes: [2]types.EntityType{types.EntityTypeDepartment, types.EntityTypeDepartment}, Relationship: types.RelCoordinatesWith},
		{EntityTypes: [2]types.EntityType{types.EntityTypeRole, types.EntityTypeCommunicationChannel}, Relationship: types.RelParticipatesIn},
		{EntityTypes: [2]types.EntityType{types.EntityTypeTeam, types.EntityTypeCommunicationChannel}, Relationship: types.RelParticipatesIn},
		{EntityTypes: [2]types.EntityType{types.EntityTypeRole, types.EntityTypeMeeting}, Relationship: types.RelParticipatesIn},
		{EntityTypes: [2]types.EntityType{types.EntityTypeTeam, types.EntityTypeMeeting}, Relationship: types.RelParticipatesIn},
		{EntityTypes: [2]types.EntityType{types.EntityTypeRole, types.EntityTypeSystem}, Relationship: types.RelUses},
		{EntityTypes: [2]types.EntityType{types.EntityTypeTeam, types.EntityTypeSystem}, Relationship: types.RelUses},
		{EntityTypes: [2]types.EntityType{types.EntityTypeRole, types.EntityTypeTool}, Relationship: types.RelUses},
		{EntityTypes: [2]types.EntityType{types.EntityTypeTeam, types.EntityTypeTool}, Relationship: types.RelUses},
		{EntityTypes: [2]types.EntityType{types.EntityTypeProcess, types.EntityTypeSystem}, Relationship: types.RelDependsOn},
		{EntityTypes: [2]types.EntityType{types.EntityTypeProcess, types.EntityTypePainPoint}, Relationship: types.RelCauses},
		{EntityTypes: [2]types.EntityType{types.EntityTypeSystem, types.EntityTypePainPoint}, Relationship: types.RelCauses},
		{EntityTypes: [2]types.EntityType{types.EntityTypeDepartment, types.EntityTypeProcess}, Relationship: types.RelOwns},
		{EntityTypes: [2]types.EntityType{types.EntityTypeTeam, types.EntityTypeProcess}, Relationship: types.RelOwns},
		{EntityTypes: [2]types.EntityType{types.EntityTypeSystem, types.EntityTypeDataAsset}, Relationship: types.RelFeedsInto},
		{EntityTypes: [2]types.EntityType{types.EntityTypeIntegration, types.EntityTypeSystem}, Relationship: types.RelDependsOn},
	} {
		t.rules[r.EntityTypes] = r.Relationship
	}
	return t
}

// LoadRules reads a YAML rule table, replacing the defaults entirely.
func LoadRules(path string) (*RuleTable, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rule table: %w", err)
	}
	var file ruleFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("failed to parse rule table: %w", err)
	}
	t := &RuleTable{rules: make(map[[2]types.EntityType]types.RelationshipType, len(file.Rules))}
	for _, r := range file.Rules {
		if !types.ValidRelationshipType(r.Relationship) {
			return nil, fmt.Errorf("rule table: %w: %s", types.ErrUnknownRelationType, r.Relationship)
		}
		if !types.ValidEntityType(r.EntityTypes[0]) || !types.ValidEntityType(r.EntityTypes[1]) {
			return nil, fmt.Errorf("rule table: %w: %v", types.ErrUnknownType, r.EntityTypes)
		}
		t.rules[r.EntityTypes] = r.Relationship
	}
	return t, nil
}

// Lookup returns the relationship type for a type pair. swapped reports that
// the rule matched with the arguments reversed, so a directional relationship
// must flip its endpoints.
func (t *RuleTable) Lookup(a, b types.EntityType) (relType types.RelationshipType, swapped, ok bool) {
	if rel, found := t.rules[[2]types.EntityType{a, b}]; found {
		return rel, false, true
	}
	if rel, found := t.rules[[2]types.EntityType{b, a}]; found {
		return rel, true, true
	}
	return "", false, false
}

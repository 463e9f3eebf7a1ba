package workspace

import (
	"strconv"
	"strings"
	"time"

	"github.com/goliatone/go-workspace-sync/core"
)

func adaptUser(raw map[string]any) core.UserRecord {
	name, _ := raw["name"].(map[string]any)
	return core.UserRecord{
		ProviderUserID:   stringField(raw, "id"),
		Email:            stringField(raw, "primaryEmail"),
		FullName:         stringField(name, "fullName"),
		GivenName:        stringField(name, "givenName"),
		FamilyName:       stringField(name, "familyName"),
		IsAdmin:          boolField(raw, "isAdmin"),
		IsDelegatedAdmin: boolField(raw, "isDelegatedAdmin"),
		Suspended:        boolField(raw, "suspended"),
		OrgUnitPath:      stringField(raw, "orgUnitPath"),
		AvatarURL:        stringField(raw, "thumbnailPhotoUrl"),
		Raw:              raw,
	}
}

func adaptUsers(raw []map[string]any) []core.UserRecord {
	users := make([]core.UserRecord, 0, len(raw))
	for _, entry := range raw {
		users = append(users, adaptUser(entry))
	}
	return users
}

func adaptGroup(raw map[string]any) core.GroupRecord {
	return core.GroupRecord{
		ProviderGroupID: stringField(raw, "id"),
		Email:           stringField(raw, "email"),
		Name:            stringField(raw, "name"),
		Description:     stringField(raw, "description"),
		MemberCount:     intField(raw, "directMembersCount"),
		Raw:             raw,
	}
}

func adaptGroups(raw []map[string]any) []core.GroupRecord {
	groups := make([]core.GroupRecord, 0, len(raw))
	for _, entry := range raw {
		groups = append(groups, adaptGroup(entry))
	}
	return groups
}

// adaptMembers keeps only direct USER members; nested groups and service
// accounts are not membership edges in the directory model.
func adaptMembers(raw []map[string]any, providerGroupID string) []core.MemberRecord {
	members := make([]core.MemberRecord, 0, len(raw))
	for _, entry := range raw {
		if stringField(entry, "type") != "USER" {
			continue
		}
		role := stringField(entry, "role")
		if role == "" {
			role = "MEMBER"
		}
		members = append(members, core.MemberRecord{
			ProviderGroupID: providerGroupID,
			ProviderUserID:  stringField(entry, "id"),
			Email:           stringField(entry, "email"),
			Role:            role,
		})
	}
	return members
}

func adaptUserToken(raw map[string]any, userProviderID string) core.TokenRecord {
	return core.TokenRecord{
		UserProviderID: userProviderID,
		ClientID:       stringField(raw, "clientId"),
		DisplayText:    stringField(raw, "displayText"),
		ClientType:     tokenClientType(raw),
		IsSystemApp:    boolField(raw, "anonymous"),
		Scopes:         stringSliceField(raw, "scopes"),
		Raw:            raw,
	}
}

func adaptUserTokens(raw []map[string]any, userProviderID string) []core.TokenRecord {
	tokens := make([]core.TokenRecord, 0, len(raw))
	for _, entry := range raw {
		tokens = append(tokens, adaptUserToken(entry, userProviderID))
	}
	return tokens
}

func tokenClientType(raw map[string]any) string {
	if boolField(raw, "nativeApp") {
		return "NATIVE_APPLICATION"
	}
	return "WEB"
}

// adaptTokenEvent turns one Reports activity row into a ledger record. Rows
// missing the actor email, the event entry, or a client_id parameter carry
// nothing attributable and are dropped.
func adaptTokenEvent(raw map[string]any) (core.TokenEventRecord, bool) {
	actor, _ := raw["actor"].(map[string]any)
	userEmail := stringField(actor, "email")
	if userEmail == "" {
		return core.TokenEventRecord{}, false
	}

	events, _ := raw["events"].([]any)
	if len(events) == 0 {
		return core.TokenEventRecord{}, false
	}
	event, _ := events[0].(map[string]any)
	if event == nil {
		return core.TokenEventRecord{}, false
	}

	params := flattenParameters(event)
	clientID, _ := params["client_id"].(string)
	if strings.TrimSpace(clientID) == "" {
		return core.TokenEventRecord{}, false
	}

	appName, _ := params["app_name"].(string)
	clientType, _ := params["client_type"].(string)
	scopes := anySliceToStrings(params["scope"])

	record := core.TokenEventRecord{
		UserEmail:  userEmail,
		ClientID:   clientID,
		AppName:    appName,
		ClientType: clientType,
		EventType:  strings.ToLower(stringField(event, "name")),
		Scopes:     scopes,
		Raw:        raw,
	}

	id, _ := raw["id"].(map[string]any)
	if stamp := stringField(id, "time"); stamp != "" {
		if parsed, err := time.Parse(time.RFC3339, stamp); err == nil {
			record.EventTime = parsed.UTC()
		}
	}
	return record, true
}

func adaptTokenEvents(raw []map[string]any) []core.TokenEventRecord {
	records := make([]core.TokenEventRecord, 0, len(raw))
	for _, entry := range raw {
		if record, ok := adaptTokenEvent(entry); ok {
			records = append(records, record)
		}
	}
	return records
}

// flattenParameters collapses the Reports parameter list into a name-keyed
// map, preferring value and falling back to multiValue.
func flattenParameters(event map[string]any) map[string]any {
	raw, _ := event["parameters"].([]any)
	params := make(map[string]any, len(raw))
	for _, entry := range raw {
		param, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		name := stringField(param, "name")
		if name == "" {
			continue
		}
		if value, ok := param["value"]; ok {
			params[name] = value
			continue
		}
		if multi, ok := param["multiValue"]; ok {
			params[name] = multi
		}
	}
	return params
}

func stringField(raw map[string]any, key string) string {
	if raw == nil {
		return ""
	}
	value, _ := raw[key].(string)
	return value
}

func boolField(raw map[string]any, key string) bool {
	if raw == nil {
		return false
	}
	value, _ := raw[key].(bool)
	return value
}

func intField(raw map[string]any, key string) int {
	if raw == nil {
		return 0
	}
	switch value := raw[key].(type) {
	case float64:
		return int(value)
	case int:
		return value
	case string:
		parsed, err := strconv.Atoi(value)
		if err != nil {
			return 0
		}
		return parsed
	default:
		return 0
	}
}

func stringSliceField(raw map[string]any, key string) []string {
	if raw == nil {
		return nil
	}
	return anySliceToStrings(raw[key])
}

func anySliceToStrings(value any) []string {
	raw, ok := value.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, entry := range raw {
		if s, ok := entry.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

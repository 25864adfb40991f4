package audit

import "strings"

// extractResource pulls the resource type and id out of an API path.
// Recognized shapes:
//
//	/api/apps/{id}
//	/api/apps/{id}/versions
//	/api/versions/{id}/publish
//	/api/admin/users/{id}
//	/api/admin/apps/{id}/toggle-public
func extractResource(path string) (resourceType, resourceID string) {
	parts := strings.Split(strings.TrimPrefix(path, "/"), "/")

	for i, p := range parts {
		switch p {
		case "apps":
			resourceType = "app"
		case "versions":
			// An upload posts to /apps/{id}/versions; the version does
			// not exist yet, so the app stays the subject.
			if resourceType == "" {
				resourceType = "version"
			} else {
				continue
			}
		case "users":
			resourceType = "user"
		default:
			continue
		}
		if i+1 < len(parts) && isID(parts[i+1]) {
			resourceID = parts[i+1]
		}
		return resourceType, resourceID
	}
	return "", ""
}

func isID(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// actionVerb names what the request did. Named sub-actions win over
// the bare HTTP method.
func actionVerb(method, path string) string {
	parts := strings.Split(strings.TrimPrefix(path, "/"), "/")
	last := ""
	if len(parts) > 0 {
		last = parts[len(parts)-1]
	}

	switch last {
	case "find-or-create":
		return "find-or-create"
	case "publish":
		return "publish"
	case "toggle-public":
		return "toggle-public"
	case "versions":
		if method == "POST" {
			return "upload"
		}
	}

	switch method {
	case "POST":
		return "create"
	case "PATCH", "PUT":
		return "update"
	case "DELETE":
		return "delete"
	}
	return strings.ToLower(method)
}

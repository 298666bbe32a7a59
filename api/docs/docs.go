// Package docs embeds the Swagger spec that http-swagger serves at
// /swagger/. It's hand-maintained rather than generated by `swag init`,
// since the generator isn't part of this module's build.
package docs

import (
	"github.com/swaggo/swag"
)

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {},
        "license": {
            "name": "CC BY-NC 4.0",
            "url": "https://creativecommons.org/licenses/by-nc/4.0/"
        },
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/api/pim/install": {
            "post": {
                "description": "Starts an install task for a plugin id, optionally pinned to a version and fetched from a non-official repo.",
                "tags": ["PIM"],
                "summary": "Install a plugin",
                "security": [{"BearerAuth": []}, {"CookieAuth": []}],
                "responses": {
                    "202": {"description": "Accepted"}
                }
            }
        },
        "/api/pim/uninstall": {
            "post": {
                "description": "Starts an uninstall task for a plugin id.",
                "tags": ["PIM"],
                "summary": "Uninstall a plugin",
                "security": [{"BearerAuth": []}, {"CookieAuth": []}],
                "responses": {
                    "202": {"description": "Accepted"}
                }
            }
        },
        "/api/pim/tasks/{id}": {
            "get": {
                "description": "Returns one task's current state.",
                "tags": ["PIM"],
                "summary": "Get a task",
                "security": [{"BearerAuth": []}, {"CookieAuth": []}],
                "responses": {
                    "200": {"description": "OK"},
                    "404": {"description": "Not Found"}
                }
            }
        },
        "/api/pim/tasks": {
            "get": {
                "description": "Returns every tracked task.",
                "tags": ["PIM"],
                "summary": "List tasks",
                "security": [{"BearerAuth": []}, {"CookieAuth": []}],
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        },
        "/api/pim/catalogue": {
            "get": {
                "description": "Returns the plugin catalogue for a repo_url, the official catalogue if omitted.",
                "tags": ["PIM"],
                "summary": "Get a catalogue",
                "security": [{"BearerAuth": []}, {"CookieAuth": []}],
                "responses": {
                    "200": {"description": "OK"},
                    "502": {"description": "Bad Gateway"}
                }
            }
        },
        "/api/pim/plugins": {
            "get": {
                "description": "Returns the official catalogue's plugins, optionally filtered by keyword.",
                "tags": ["PIM"],
                "summary": "List catalogue plugins",
                "security": [{"BearerAuth": []}, {"CookieAuth": []}],
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        },
        "/api/login": {
            "post": {
                "description": "Authenticates the operator and issues a JWT.",
                "tags": ["Authentication"],
                "summary": "Log in",
                "responses": {
                    "200": {"description": "OK"},
                    "401": {"description": "Unauthorized"},
                    "429": {"description": "Too Many Requests"}
                }
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it.
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "localhost:8000",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "PIM Hub API",
	Description:      "Plugin installation and management backend for an MCDR server.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}

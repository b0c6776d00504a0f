package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "SMA Principal Report API",
        "description": "Principal-facing school performance report",
        "version": "1.0.0"
    },
    "basePath": "/",
    "schemes": [
        "http",
        "https"
    ],
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    },
    "tags": [
        {"name": "PrincipalReport", "description": "School performance report for principals"},
        {"name": "Operations", "description": "Probes and metrics"}
    ],
    "paths": {
        "/health": {
            "get": {
                "tags": ["Operations"],
                "summary": "Liveness probe",
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        },
        "/ready": {
            "get": {
                "tags": ["Operations"],
                "summary": "Readiness probe",
                "responses": {
                    "200": {"description": "Ready", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "503": {"description": "A dependency is down", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/metrics": {
            "get": {
                "tags": ["Operations"],
                "summary": "Prometheus metrics",
                "produces": ["text/plain"],
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        },
        "/api/v1/principal/report": {
            "get": {
                "tags": ["PrincipalReport"],
                "summary": "Principal performance report",
                "description": "KPIs, trends, class comparison, insights and data-health actions for the caller's school",
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "parameters": [
                    {"name": "academic_year", "in": "query", "type": "string", "description": "Defaults to the latest available year"},
                    {"name": "grade_level", "in": "query", "type": "array", "items": {"type": "string"}, "collectionFormat": "multi"},
                    {"name": "class_id", "in": "query", "type": "array", "items": {"type": "string"}, "collectionFormat": "multi"},
                    {"name": "lesson_id", "in": "query", "type": "array", "items": {"type": "string"}, "collectionFormat": "multi"},
                    {"name": "start_date", "in": "query", "type": "string", "format": "date"},
                    {"name": "end_date", "in": "query", "type": "string", "format": "date"},
                    {"name": "comparison_metric", "in": "query", "type": "string", "enum": ["average_score", "activity_volume"]},
                    {"name": "comparison_order", "in": "query", "type": "string", "enum": ["top", "bottom"]}
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "allOf": [
                                {"$ref": "#/definitions/ResponseEnvelope"},
                                {"type": "object", "properties": {"data": {"$ref": "#/definitions/PrincipalReport"}}}
                            ]
                        }
                    },
                    "400": {"description": "Invalid filter", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Missing or invalid session", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "403": {"description": "Caller is not a principal", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "500": {"description": "Report failed", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "503": {"description": "Report generation timed out", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        }
    },
    "definitions": {
        "PrincipalReport": {
            "type": "object",
            "properties": {
                "filters": {"$ref": "#/definitions/ReportFilters"},
                "kpis": {
                    "type": "object",
                    "properties": {"cards": {"type": "array", "items": {"$ref": "#/definitions/KPICard"}}}
                },
                "trends": {
                    "type": "object",
                    "properties": {
                        "learningActivityTrend": {"type": "array", "items": {"$ref": "#/definitions/TrendPoint"}},
                        "classComparison": {"$ref": "#/definitions/ClassComparison"}
                    }
                },
                "insights": {"$ref": "#/definitions/ReportInsights"},
                "actions": {
                    "type": "object",
                    "properties": {"items": {"type": "array", "items": {"$ref": "#/definitions/ActionItem"}}}
                },
                "meta": {
                    "type": "object",
                    "properties": {
                        "cacheKey": {"type": "string"},
                        "generatedAt": {"type": "string", "format": "date-time"},
                        "granularity": {"type": "string", "enum": ["day", "week"]},
                        "version": {"type": "integer"}
                    }
                }
            }
        },
        "ReportFilters": {
            "type": "object",
            "properties": {
                "options": {
                    "type": "object",
                    "properties": {
                        "academicYears": {"type": "array", "items": {"type": "string"}},
                        "gradeLevels": {"type": "array", "items": {"type": "string"}},
                        "classes": {
                            "type": "array",
                            "items": {
                                "type": "object",
                                "properties": {
                                    "id": {"type": "string"},
                                    "name": {"type": "string"},
                                    "academicYear": {"type": "string"},
                                    "gradeLevel": {"type": "string"},
                                    "section": {"type": "string"}
                                }
                            }
                        },
                        "lessons": {
                            "type": "array",
                            "items": {
                                "type": "object",
                                "properties": {"id": {"type": "string"}, "name": {"type": "string"}}
                            }
                        }
                    }
                },
                "defaults": {
                    "type": "object",
                    "properties": {
                        "academicYear": {"type": "string", "x-nullable": true},
                        "startDate": {"type": "string", "format": "date"},
                        "endDate": {"type": "string", "format": "date"}
                    }
                },
                "current": {
                    "type": "object",
                    "properties": {
                        "academicYear": {"type": "string", "x-nullable": true},
                        "gradeLevels": {"type": "array", "items": {"type": "string"}},
                        "classIds": {"type": "array", "items": {"type": "string"}},
                        "lessonIds": {"type": "array", "items": {"type": "string"}},
                        "startDate": {"type": "string", "format": "date"},
                        "endDate": {"type": "string", "format": "date"},
                        "comparisonMetric": {"type": "string"},
                        "comparisonOrder": {"type": "string"}
                    }
                }
            }
        },
        "KPICard": {
            "type": "object",
            "properties": {
                "key": {"type": "string"},
                "label": {"type": "string"},
                "value": {"type": "number", "x-nullable": true},
                "previous": {"type": "number", "x-nullable": true},
                "unit": {"type": "string"},
                "delta": {
                    "type": "object",
                    "properties": {
                        "value": {"type": "number", "x-nullable": true},
                        "percent": {"type": "number", "x-nullable": true},
                        "direction": {"type": "string", "enum": ["up", "down", "neutral"]}
                    }
                },
                "extra": {"type": "object"}
            }
        },
        "TrendPoint": {
            "type": "object",
            "properties": {
                "date": {"type": "string", "format": "date"},
                "activityCount": {"type": "integer"},
                "averageActivityScore": {"type": "number", "x-nullable": true}
            }
        },
        "ClassComparison": {
            "type": "object",
            "properties": {
                "metric": {"type": "string"},
                "order": {"type": "string"},
                "items": {
                    "type": "array",
                    "items": {
                        "type": "object",
                        "properties": {
                            "classId": {"type": "string"},
                            "className": {"type": "string"},
                            "gradeLevel": {"type": "string"},
                            "section": {"type": "string"},
                            "activityVolume": {"type": "integer"},
                            "averageScore": {"type": "number", "x-nullable": true}
                        }
                    }
                }
            }
        },
        "StudentRisk": {
            "type": "object",
            "properties": {
                "studentId": {"type": "string"},
                "fullName": {"type": "string"},
                "className": {"type": "string", "x-nullable": true},
                "currentAverage": {"type": "number"},
                "previousAverage": {"type": "number"},
                "delta": {"type": "number"},
                "activityCount": {"type": "integer"},
                "absenceDays": {"type": "integer"}
            }
        },
        "ReportInsights": {
            "type": "object",
            "properties": {
                "teachers": {
                    "type": "array",
                    "items": {
                        "type": "object",
                        "properties": {
                            "teacherId": {"type": "string"},
                            "fullName": {"type": "string"},
                            "classCount": {"type": "integer"},
                            "activityCount": {"type": "integer"},
                            "averageGrade": {"type": "number", "x-nullable": true},
                            "lastActivityAt": {"type": "string", "format": "date-time", "x-nullable": true}
                        }
                    }
                },
                "students": {
                    "type": "object",
                    "properties": {
                        "academicDecline": {"type": "array", "items": {"$ref": "#/definitions/StudentRisk"}},
                        "lowEngagement": {"type": "array", "items": {"$ref": "#/definitions/StudentRisk"}},
                        "behavioralRisk": {"type": "array", "items": {"$ref": "#/definitions/StudentRisk"}}
                    }
                },
                "aiUsage": {
                    "type": "object",
                    "properties": {
                        "totalRequests": {"type": "integer"},
                        "successRate": {"type": "number"},
                        "errorRate": {"type": "number"},
                        "averageProcessingMs": {"type": "number", "x-nullable": true},
                        "byModel": {
                            "type": "array",
                            "items": {
                                "type": "object",
                                "properties": {"model": {"type": "string"}, "count": {"type": "integer"}}
                            }
                        }
                    }
                }
            }
        },
        "ActionItem": {
            "type": "object",
            "properties": {
                "key": {"type": "string"},
                "severity": {"type": "string", "enum": ["high", "medium", "low"]},
                "title": {"type": "string"},
                "count": {"type": "integer"}
            }
        },
        "APIError": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"},
                "status": {"type": "integer"}
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "data": {"type": "object"},
                "error": {"$ref": "#/definitions/APIError"},
                "meta": {"type": "object"}
            }
        }
    }
}`

type swaggerDoc struct{}

// ReadDoc returns the Swagger document.
func (s *swaggerDoc) ReadDoc() string {
	return docTemplate
}

func init() {
	swag.Register(swag.Name, &swaggerDoc{})
}

package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/graphql-go/graphql"

	"github.com/samirrijal/ndvigrid/internal/pkg/colorscale"
)

// buildSchema creates the GraphQL schema wired to the grid.
// Struct values resolve through their json tags.
func buildSchema(deps *Dependencies) (graphql.Schema, error) {
	geoPointType := graphql.NewObject(graphql.ObjectConfig{
		Name: "GeoPoint",
		Fields: graphql.Fields{
			"lat": &graphql.Field{Type: graphql.Float},
			"lng": &graphql.Field{Type: graphql.Float},
		},
	})

	viewStateType := graphql.NewObject(graphql.ObjectConfig{
		Name: "ViewState",
		Fields: graphql.Fields{
			"center": &graphql.Field{Type: geoPointType},
			"zoom":   &graphql.Field{Type: graphql.Int},
		},
	})

	viewportType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Viewport",
		Fields: graphql.Fields{
			"id":          &graphql.Field{Type: graphql.String},
			"title":       &graphql.Field{Type: graphql.String},
			"year":        &graphql.Field{Type: graphql.Int},
			"url":         &graphql.Field{Type: graphql.String},
			"layer_state": &graphql.Field{Type: graphql.String},
			"zoom":        &graphql.Field{Type: graphql.Int},
			"center":      &graphql.Field{Type: geoPointType},
		},
	})

	legendStopType := graphql.NewObject(graphql.ObjectConfig{
		Name: "LegendStop",
		Fields: graphql.Fields{
			"score":  &graphql.Field{Type: graphql.Float},
			"offset": &graphql.Field{Type: graphql.Float},
			"color":  &graphql.Field{Type: graphql.String},
		},
	})

	timelineType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Timeline",
		Fields: graphql.Fields{
			"years":   &graphql.Field{Type: graphql.NewList(graphql.Int)},
			"active":  &graphql.Field{Type: graphql.Int},
			"playing": &graphql.Field{Type: graphql.Boolean},
		},
	})

	queryType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Query",
		Fields: graphql.Fields{
			"viewState": &graphql.Field{
				Type:        viewStateType,
				Description: "Shared view state of the grid",
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return deps.Grid.Sync().State(), nil
				},
			},
			"viewports": &graphql.Field{
				Type:        graphql.NewList(viewportType),
				Description: "Mounted viewports in grid order",
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					vps := deps.Grid.Viewports()
					out := make([]ViewportInfo, 0, len(vps))
					for _, vp := range vps {
						out = append(out, viewportInfo(vp))
					}
					return out, nil
				},
			},
			"legend": &graphql.Field{
				Type:        graphql.NewList(legendStopType),
				Description: "Color ramp stops from -1 to 1",
				Args: graphql.FieldConfigArgument{
					"steps": &graphql.ArgumentConfig{Type: graphql.Int, DefaultValue: 11},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return colorscale.Legend(p.Args["steps"].(int)), nil
				},
			},
			"colorFor": &graphql.Field{
				Type:        graphql.String,
				Description: "Fill color of an NDVI score",
				Args: graphql.FieldConfigArgument{
					"score": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Float)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return colorscale.ColorFor(p.Args["score"].(float64)), nil
				},
			},
			"timeline": &graphql.Field{
				Type:        timelineType,
				Description: "Year selector state",
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return deps.Timeline.State(), nil
				},
			},
		},
	})

	mutationType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Mutation",
		Fields: graphql.Fields{
			"setZoom": &graphql.Field{
				Type: viewStateType,
				Args: graphql.FieldConfigArgument{
					"zoom": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Int)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					if _, err := deps.Grid.Sync().SetZoom(p.Args["zoom"].(int)); err != nil {
						return nil, err
					}
					return deps.Grid.Sync().State(), nil
				},
			},
			"setCenter": &graphql.Field{
				Type: viewStateType,
				Args: graphql.FieldConfigArgument{
					"lat": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Float)},
					"lng": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Float)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					if _, err := deps.Grid.Sync().SetCenter(p.Args["lat"].(float64), p.Args["lng"].(float64)); err != nil {
						return nil, err
					}
					return deps.Grid.Sync().State(), nil
				},
			},
			"selectYear": &graphql.Field{
				Type: timelineType,
				Args: graphql.FieldConfigArgument{
					"year": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Int)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					if err := deps.Timeline.Select(p.Args["year"].(int)); err != nil {
						return nil, err
					}
					return deps.Timeline.State(), nil
				},
			},
		},
	})

	return graphql.NewSchema(graphql.SchemaConfig{
		Query:    queryType,
		Mutation: mutationType,
	})
}

// GraphQLHandler serves the GraphQL endpoint.
func GraphQLHandler(deps *Dependencies) fiber.Handler {
	schema, err := buildSchema(deps)
	if err != nil {
		// This would be a programming error in the schema definition
		panic("graphql schema build: " + err.Error())
	}

	type gqlRequest struct {
		Query         string                 `json:"query"`
		OperationName string                 `json:"operationName"`
		Variables     map[string]interface{} `json:"variables"`
	}

	return func(c *fiber.Ctx) error {
		var req gqlRequest
		if err := c.BodyParser(&req); err != nil || req.Query == "" {
			return errBadRequest(c, "body must be {\"query\": <string>}")
		}

		result := graphql.Do(graphql.Params{
			Schema:         schema,
			RequestString:  req.Query,
			VariableValues: req.Variables,
			OperationName:  req.OperationName,
			Context:        c.UserContext(),
		})

		return c.JSON(result)
	}
}

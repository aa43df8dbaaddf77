package dynamorepo

import (
	"context"
	"sort"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/tilerush/scoreboard/common/database"
	apperrors "github.com/tilerush/scoreboard/common/errors"
	"github.com/tilerush/scoreboard/common/models"
	"github.com/tilerush/scoreboard/services/scoring-service/internal/repository"
)

func itoa(n int64) string {
	return strconv.FormatInt(n, 10)
}

type tierRepo struct {
	table
}

func NewTierRepository(db *database.DynamoDBClient) repository.TierRepository {
	return &tierRepo{table: table{db: db}}
}

func (r *tierRepo) List(ctx context.Context) ([]*models.PromocodeType, error) {
	items, err := r.queryPrefix(ctx, models.TierCatalogPK(), models.TierSK(""))
	if err != nil {
		return nil, err
	}

	var tiers []*models.PromocodeType
	if err := attributevalue.UnmarshalListOfMaps(items, &tiers); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeObjectUnmarshalError, "failed to unmarshal promocode types")
	}

	sort.Slice(tiers, func(i, j int) bool {
		if tiers[i].SortOrder != tiers[j].SortOrder {
			return tiers[i].SortOrder < tiers[j].SortOrder
		}
		return tiers[i].TierId < tiers[j].TierId
	})
	return tiers, nil
}

func (r *tierRepo) Get(ctx context.Context, tierId string) (*models.PromocodeType, error) {
	var tier models.PromocodeType
	found, err := r.getItem(ctx, models.TierCatalogPK(), models.TierSK(tierId), &tier)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, apperrors.New(apperrors.CodeNotFound, "promocode type not found")
	}
	return &tier, nil
}

func (r *tierRepo) Upsert(ctx context.Context, tier *models.PromocodeType) error {
	tier.PK = models.TierCatalogPK()
	tier.SK = models.TierSK(tier.TierId)
	return r.putItem(ctx, tier)
}

type inventoryRepo struct {
	table
}

func NewInventoryRepository(db *database.DynamoDBClient) repository.InventoryRepository {
	return &inventoryRepo{table: table{db: db}}
}

func (r *inventoryRepo) Add(ctx context.Context, codes []*models.InventoryCode) error {
	items := make([]map[string]types.AttributeValue, 0, len(codes))
	for _, code := range codes {
		code.PK = models.InventoryPK(code.TierId)
		code.SK = models.InventorySK(code.CodeId)

		item, err := attributevalue.MarshalMap(code)
		if err != nil {
			return apperrors.Wrap(err, apperrors.CodeObjectMarshalError, "failed to marshal inventory code")
		}
		items = append(items, item)
	}
	return r.batchPut(ctx, items)
}

func (r *inventoryRepo) CountByTier(ctx context.Context) (map[string]int64, error) {
	counts := make(map[string]int64)
	err := r.scan(ctx,
		"begins_with(PK, :prefix)",
		map[string]types.AttributeValue{":prefix": str("INVENTORY#")},
		"tier_id",
		func(items []map[string]types.AttributeValue) error {
			for _, item := range items {
				if v, ok := item["tier_id"].(*types.AttributeValueMemberS); ok {
					counts[v.Value]++
				}
			}
			return nil
		},
	)
	if err != nil {
		return nil, err
	}
	return counts, nil
}
